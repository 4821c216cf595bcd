package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/defisafe/hotwallet/internal/addresscodec"
	"github.com/defisafe/hotwallet/internal/walleterrors"
	"github.com/defisafe/hotwallet/pkg/models"
)

// SolanaClient speaks Solana's JSON-RPC over net/http directly: no
// repo in the retrieved pack vendors a Solana SDK, so this follows
// the plain net/http JSON-RPC style the teacher uses for its own
// chain calls rather than introducing an unseen dependency.
type SolanaClient struct {
	rpcURL string
	http   *http.Client
}

// NewSolanaClient returns a client against rpcURL.
func NewSolanaClient(rpcURL string) *SolanaClient {
	return &SolanaClient{rpcURL: rpcURL, http: &http.Client{}}
}

func (c *SolanaClient) NetworkName() models.Network { return models.NetworkSolana }

func (c *SolanaClient) ValidateAddress(address string) bool {
	return addresscodec.ValidateSolanaAddress(address)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *SolanaClient) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return walleterrors.Wrap(walleterrors.KindNetwork, "solana rpc marshal", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return walleterrors.Wrap(walleterrors.KindNetwork, "solana rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return walleterrors.Wrap(walleterrors.KindNetwork, "solana rpc call", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return walleterrors.Wrap(walleterrors.KindNetwork, "solana rpc decode", err)
	}
	if envelope.Error != nil {
		return walleterrors.New(walleterrors.KindNetwork, "solana rpc error: "+envelope.Error.Message)
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

// GetBalance returns the account's lamport balance as a *big.Int.
func (c *SolanaClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var out struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{address}, &out); err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(out.Value), nil
}

// GetNonce is a best-effort analogue for Solana's blockhash-based
// replay protection: the protocol has no per-account sequence number,
// so this reports the slot height the caller should bind a durable
// nonce account to. Wallets using this core for Solana sends treat
// the returned value as a monotonic local counter only, not a
// network-enforced nonce (spec §4.2's "Solana has no account nonce"
// asymmetry, carried through unchanged from the original).
func (c *SolanaClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, "getSlot", nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// SendSignedWithNonce submits a base64-encoded signed transaction.
// nonce is accepted for interface symmetry with the EVM client but is
// not part of Solana's wire format; NonceEngine still serializes
// submissions per address in-process.
func (c *SolanaClient) SendSignedWithNonce(ctx context.Context, rawSigned []byte, _ uint64) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(rawSigned)
	var sig string
	if err := c.call(ctx, "sendTransaction", []any{encoded, map[string]string{"encoding": "base64"}}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

func (c *SolanaClient) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var out struct {
		Value *struct {
			Slot uint64 `json:"slot"`
			Err  any    `json:"err"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getSignatureStatuses", []any{[]string{txHash}}, &out); err != nil {
		return nil, err
	}
	if out.Value == nil {
		return &Receipt{TxHash: txHash, Confirmed: false}, nil
	}
	return &Receipt{
		TxHash:      txHash,
		BlockNumber: out.Value.Slot,
		Confirmed:   true,
		Success:     out.Value.Err == nil,
	}, nil
}
