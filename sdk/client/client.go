package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"

	"dlanstake/core"
	"dlanstake/core/types"
	"dlanstake/native/stake"
)

const (
	jsonRPCVersion = "2.0"
	defaultRPCID   = 1
)

// Client wraps the node's JSON-RPC endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	authToken  string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for RPC calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAuthToken sets the bearer token attached to instruction submissions.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = strings.TrimSpace(token)
	}
}

// New initialises a client bound to the provided JSON-RPC endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("client: endpoint required")
	}
	c := &Client{endpoint: trimmed, httpClient: http.DefaultClient}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// Error is a JSON-RPC error returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("client: rpc error %d: %s", e.Code, e.Message)
}

// CodeProgramRejection marks instructions the program refused.
const CodeProgramRejection = -32030

type rejection struct {
	Kind    string         `json:"kind"`
	Receipt *types.Receipt `json:"receipt"`
}

// RejectionKind returns the taxonomy name of a program rejection, or "" for
// any other error.
func RejectionKind(err error) string {
	var rpcErr *Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeProgramRejection {
		return ""
	}
	var data rejection
	if json.Unmarshal(rpcErr.Data, &data) != nil {
		return ""
	}
	return data.Kind
}

// Send submits a signed instruction. Program rejections return the receipt
// alongside the error.
func (c *Client) Send(ctx context.Context, signed *types.SignedInstruction) (*types.Receipt, error) {
	var receipt types.Receipt
	err := c.call(ctx, "stake_sendInstruction", []interface{}{signed}, true, &receipt)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) && rpcErr.Code == CodeProgramRejection {
			var data rejection
			if json.Unmarshal(rpcErr.Data, &data) == nil && data.Receipt != nil {
				return data.Receipt, err
			}
		}
		return nil, err
	}
	return &receipt, nil
}

// ClaimStatus fetches the participant's claim window on a track.
func (c *Client) ClaimStatus(ctx context.Context, track stake.Track, participant solana.PublicKey) (*stake.Status, error) {
	var out stake.Status
	params := map[string]string{"track": track.String(), "participant": participant.String()}
	if err := c.call(ctx, "stake_getClaimStatus", []interface{}{params}, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TokenBalance fetches owner's balance of mint.
func (c *Client) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (*core.TokenBalance, error) {
	var out core.TokenBalance
	params := map[string]string{"owner": owner.String(), "mint": mint.String()}
	if err := c.call(ctx, "stake_getTokenBalance", []interface{}{params}, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Lamports fetches the native balance of addr.
func (c *Client) Lamports(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	var out types.Account
	params := map[string]string{"address": addr.String()}
	if err := c.call(ctx, "stake_getLamports", []interface{}{params}, false, &out); err != nil {
		return 0, err
	}
	return out.Lamports, nil
}

// Mint fetches a mint definition.
func (c *Client) Mint(ctx context.Context, addr solana.PublicKey) (*types.Mint, error) {
	var out types.Mint
	params := map[string]string{"address": addr.String()}
	if err := c.call(ctx, "stake_getMint", []interface{}{params}, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mints lists the mints registered on the node.
func (c *Client) Mints(ctx context.Context) ([]core.MintEntry, error) {
	var out []core.MintEntry
	if err := c.call(ctx, "stake_listMints", nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Authorities fetches the node's derived signing authorities.
func (c *Client) Authorities(ctx context.Context) (*core.Authorities, error) {
	var out core.Authorities
	if err := c.call(ctx, "stake_getAuthorities", nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReceiptQuery selects receipts by id, authority or digest.
type ReceiptQuery struct {
	ID        string `json:"id,omitempty"`
	Authority string `json:"authority,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Receipts lists indexed receipts.
func (c *Client) Receipts(ctx context.Context, q ReceiptQuery) ([]*types.Receipt, error) {
	var out []*types.Receipt
	if err := c.call(ctx, "stake_getReceipts", []interface{}{q}, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, withAuth bool, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: jsonRPCVersion, ID: defaultRPCID, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("client: encode rpc payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if withAuth && c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: rpc call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}
	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("client: rpc error status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("client: decode rpc response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("client: decode rpc result: %w", err)
	}
	return nil
}
