package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"dlanstake/core"
	coreerrors "dlanstake/core/errors"
	"dlanstake/core/types"
	"dlanstake/crypto"
	"dlanstake/native/common"
	"dlanstake/native/stake"
	"dlanstake/observability"
	"dlanstake/storage/receipts"
)

// RejectionData accompanies codeProgramRejection.
type RejectionData struct {
	Kind    string         `json:"kind"`
	Receipt *types.Receipt `json:"receipt"`
}

type claimStatusParams struct {
	Track       string `json:"track"`
	Participant string `json:"participant"`
}

type tokenBalanceParams struct {
	Owner string `json:"owner"`
	Mint  string `json:"mint"`
}

type addressParams struct {
	Address string `json:"address"`
}

type receiptsParams struct {
	ID        string `json:"id,omitempty"`
	Authority string `json:"authority,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// decodeParam unmarshals the single positional parameter object.
func decodeParam(req *RPCRequest, dst interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	dec := json.NewDecoder(strings.NewReader(string(req.Params[0])))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseAddress(field, value string) (solana.PublicKey, error) {
	key, err := crypto.ParsePublicKey(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", field, err)
	}
	return key, nil
}

func (s *Server) handleSendInstruction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if _, err := s.auth.Authorize(r); err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
		return
	}
	var signed types.SignedInstruction
	if err := decodeParam(req, &signed); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid instruction format", err.Error())
		return
	}
	ix := signed.Instruction
	if !ix.Kind.Valid() {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unknown instruction kind", nil)
		return
	}
	if ix.Authority.IsZero() {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "authority required", nil)
		return
	}

	if _, err := core.Verify(&signed); err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "instruction signature does not verify", err.Error())
		return
	}

	digest, err := ix.Digest()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "failed to encode instruction", err.Error())
		return
	}
	now := s.nowFn()
	if !s.rememberDigest(digest, now) {
		writeError(w, http.StatusConflict, req.ID, codeDuplicate, "instruction has already been submitted", digest)
		return
	}
	if err := s.quota.Admit(ix.Authority.String(), now.Unix(), ix.Args.SolLamports); err != nil {
		s.forgetDigest(digest)
		reason := "requests"
		if errors.Is(err, common.ErrQuotaLamportsExceeded) {
			reason = "lamports"
		}
		observability.ModuleMetrics().RecordThrottle("stake", "quota_"+reason)
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "signer quota exceeded", err.Error())
		return
	}

	receipt, err := s.exec.Submit(r.Context(), &signed)
	if err != nil {
		if receipt == nil {
			if errors.Is(err, coreerrors.ErrInvalidSignature) {
				writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
				return
			}
			if errors.Is(err, core.ErrInvalidInstruction) {
				writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
				return
			}
			s.logger.Error("submit failed", slog.String("digest", digest), slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to execute instruction", nil)
			return
		}
		writeError(w, http.StatusBadRequest, req.ID, codeProgramRejection, err.Error(), RejectionData{Kind: receipt.ErrorKind, Receipt: receipt})
		return
	}
	writeResult(w, req.ID, receipt)
}

func (s *Server) handleGetClaimStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimStatusParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	track, err := stake.ParseTrack(params.Track)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	participant, err := parseAddress("participant", params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	status, err := s.exec.ClaimStatus(track, participant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load claim record", err.Error())
		return
	}
	writeResult(w, req.ID, status)
}

func (s *Server) handleGetTokenBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenBalanceParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	mint, err := parseAddress("mint", params.Mint)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.exec.TokenBalance(owner, mint)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load token balance", err.Error())
		return
	}
	writeResult(w, req.ID, balance)
}

func (s *Server) handleGetLamports(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	lamports, err := s.exec.Lamports(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, types.Account{Lamports: lamports})
}

func (s *Server) handleGetMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	mint, err := s.exec.Mint(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load mint", err.Error())
		return
	}
	if mint == nil {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "mint not found", addr.String())
		return
	}
	writeResult(w, req.ID, mint)
}

func (s *Server) handleListMints(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	mints, err := s.exec.Mints()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list mints", err.Error())
		return
	}
	writeResult(w, req.ID, mints)
}

func (s *Server) handleGetAuthorities(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	auth, err := s.exec.Authorities()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to derive authorities", err.Error())
		return
	}
	writeResult(w, req.ID, auth)
}

func (s *Server) handleGetReceipts(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.receipts == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "receipt index disabled", nil)
		return
	}
	var params receiptsParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	ctx := r.Context()
	switch {
	case params.ID != "":
		if _, err := uuid.Parse(params.ID); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid receipt id", err.Error())
			return
		}
		receipt, err := s.receipts.Get(ctx, params.ID)
		if errors.Is(err, receipts.ErrNotFound) {
			writeError(w, http.StatusNotFound, req.ID, codeServerError, "receipt not found", params.ID)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load receipt", err.Error())
			return
		}
		writeResult(w, req.ID, []*types.Receipt{receipt})
	case params.Authority != "":
		authority, err := parseAddress("authority", params.Authority)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		list, err := s.receipts.ByAuthority(ctx, authority, params.Limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list receipts", err.Error())
			return
		}
		writeResult(w, req.ID, list)
	case params.Digest != "":
		list, err := s.receipts.ByDigest(ctx, strings.TrimSpace(params.Digest), params.Limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list receipts", err.Error())
			return
		}
		writeResult(w, req.ID, list)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "one of id, authority or digest required", nil)
	}
}
