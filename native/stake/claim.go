package stake

import (
	"github.com/gagliardetto/solana-go"

	"dlanstake/core/events"
	"dlanstake/crypto"
	"dlanstake/native/common"
)

const legacyTrack = "legacy"

// ClaimUSDTSplit is the legacy untimed disbursement. It moves the declared
// amounts out of the pool without consulting any claim record.
func (e *Engine) ClaimUSDTSplit(signer crypto.KeySigner, accts SplitAccounts, userAmount, feeAmount uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, common.ModuleClaims); err != nil {
		return err
	}
	if err := e.split(signer.Key(), accts, userAmount, feeAmount); err != nil {
		return err
	}
	e.emit(events.ClaimSplit{
		Track:      legacyTrack,
		Authority:  signer.Key(),
		FeeOwner:   accts.FeeOwner,
		UserAmount: userAmount,
		FeeAmount:  feeAmount,
	})
	return nil
}

// InvestClaimSplit releases claimedDays of credit on the standard track and
// pays the split.
func (e *Engine) InvestClaimSplit(signer crypto.KeySigner, accts SplitAccounts, userAmount, feeAmount, claimedDays uint64) (*ClaimResult, error) {
	return e.timedClaim(TrackStandard, signer, accts, userAmount, feeAmount, claimedDays)
}

// VIPClaimSplitTimed is InvestClaimSplit on the priority track.
func (e *Engine) VIPClaimSplitTimed(signer crypto.KeySigner, accts SplitAccounts, userAmount, feeAmount, requestedDays uint64) (*ClaimResult, error) {
	return e.timedClaim(TrackPriority, signer, accts, userAmount, feeAmount, requestedDays)
}

func (e *Engine) timedClaim(track Track, signer crypto.KeySigner, accts SplitAccounts, userAmount, feeAmount, days uint64) (*ClaimResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, common.ModuleClaims); err != nil {
		return nil, err
	}
	if days == 0 {
		return nil, ErrZeroDaysRequested
	}
	user := signer.Key()
	addr, _, err := RecordAddress(e.programID, track, user)
	if err != nil {
		return nil, err
	}
	rec, _, err := e.state.ClaimRecordGet(addr)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{}
	}
	next, window, err := Advance(e.now(), rec, days)
	if err != nil {
		return nil, err
	}
	if err := e.state.ClaimRecordPut(addr, &next); err != nil {
		return nil, err
	}
	if err := e.split(user, accts, userAmount, feeAmount); err != nil {
		return nil, err
	}

	result := &ClaimResult{
		Track:       track,
		Record:      addr,
		Baseline:    window.Baseline,
		Days:        days,
		Watermark:   next.Watermark,
		Initialized: !rec.Initialized(),
	}
	if result.Initialized {
		e.emit(events.ClaimRecordInitialized{
			Track:     track.String(),
			Authority: user,
			Record:    addr,
			Baseline:  window.Baseline,
		})
	}
	e.emit(events.ClaimSplit{
		Track:      track.String(),
		Authority:  user,
		FeeOwner:   accts.FeeOwner,
		UserAmount: userAmount,
		FeeAmount:  feeAmount,
		Days:       days,
		Watermark:  next.Watermark,
	})
	return result, nil
}

// split pays both legs out of the vault under the derived vault authority.
// A zero leg is skipped.
func (e *Engine) split(user solana.PublicKey, accts SplitAccounts, userAmount, feeAmount uint64) error {
	userToken, err := e.state.CreateAssociatedTokenAccount(user, accts.USDTMint)
	if err != nil {
		return err
	}
	feeToken, err := e.state.CreateAssociatedTokenAccount(accts.FeeOwner, accts.USDTMint)
	if err != nil {
		return err
	}
	vaultAuth, err := crypto.NewProgramSigner(e.programID, accts.VaultAuthorityBump, []byte(crypto.VaultAuthoritySeed))
	if err != nil {
		return err
	}
	if userAmount > 0 {
		if err := e.state.TokenTransfer(accts.VaultToken, userToken, vaultAuth, userAmount); err != nil {
			return err
		}
	}
	if feeAmount > 0 {
		if err := e.state.TokenTransfer(accts.VaultToken, feeToken, vaultAuth, feeAmount); err != nil {
			return err
		}
	}
	return nil
}
