// Package tx provides an idempotent, retrying dispatcher for
// already-signed transactions. Grounded on OKaluzny-wallet-demo's
// internal/tx/builder.go (idempotency-keyed store lookup, exponential
// backoff broadcast retry), narrowed here to submission only: signing
// and nonce reservation now live in internal/signer and
// internal/nonceengine respectively (spec §4.6, §4.7), so Builder's
// one remaining job is "broadcast this signed transaction at most
// once, retrying failed broadcasts."
package tx

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/defisafe/hotwallet/internal/chain"
	"github.com/defisafe/hotwallet/internal/storage"
	"github.com/defisafe/hotwallet/internal/walleterrors"
	"github.com/defisafe/hotwallet/pkg/models"
)

// BuilderConfig holds configurable parameters for the dispatcher.
type BuilderConfig struct {
	MaxRetries int
}

// Builder submits already-signed transactions through a chain.Client
// with idempotency (by key) and retry-with-backoff, and records the
// result in a TxStore under its idempotency key.
type Builder struct {
	chains  *chain.Registry
	txStore storage.TxStore
	logger  *slog.Logger
	cfg     BuilderConfig
}

// NewBuilder returns a Builder dispatching through chains and
// recording results in txs.
func NewBuilder(cfg BuilderConfig, chains *chain.Registry, txs storage.TxStore) *Builder {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Builder{
		chains:  chains,
		txStore: txs,
		logger:  slog.Default().With("component", "tx_builder"),
		cfg:     cfg,
	}
}

// SubmitRequest describes an already-signed transaction ready for
// broadcast.
type SubmitRequest struct {
	IdempotencyKey string
	Network        models.Network
	From           string
	To             string
	Amount         *big.Int
	Nonce          uint64
	RawSigned      []byte
}

// Submit broadcasts req at most once per IdempotencyKey, retrying any
// broadcast failure up to MaxRetries attempts and waiting attempt²
// seconds after each failed attempt, and stores the resulting
// models.Transaction in the TxStore under that key.
func (b *Builder) Submit(ctx context.Context, req SubmitRequest) (*models.Transaction, error) {
	existing, err := b.txStore.Get(req.IdempotencyKey)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindStorage, "tx store get", err)
	}
	if existing != nil {
		b.logger.Info("duplicate submit request, returning existing tx",
			"idempotency_key", req.IdempotencyKey,
			"tx_hash", existing.TxHash,
		)
		return existing, nil
	}

	client, ok := b.chains.Get(req.Network)
	if !ok {
		return nil, walleterrors.New(walleterrors.KindConfig, "tx: no chain client registered for network "+string(req.Network))
	}

	tx := &models.Transaction{
		Network:   req.Network,
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount,
		Nonce:     req.Nonce,
		Signed:    true,
		RawSigned: req.RawSigned,
	}

	b.logger.Info("submitting transaction",
		"network", tx.Network,
		"from", tx.From,
		"to", tx.To,
		"nonce", tx.Nonce,
	)

	txHash, err := b.submitWithRetry(ctx, client, tx, b.cfg.MaxRetries)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindNetwork, "submit", err)
	}
	tx.TxHash = txHash

	if err := b.txStore.Put(req.IdempotencyKey, tx); err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindStorage, "tx store put", err)
	}
	return tx, nil
}

func (b *Builder) submitWithRetry(ctx context.Context, client chain.Client, tx *models.Transaction, maxRetries int) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		txHash, err := client.SendSignedWithNonce(ctx, tx.RawSigned, tx.Nonce)
		if err == nil {
			b.logger.Info("transaction broadcast successful", "tx_hash", txHash, "attempt", attempt)
			return txHash, nil
		}

		lastErr = err
		b.logger.Warn("broadcast attempt failed",
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", err,
		)

		select {
		case <-time.After(time.Duration(attempt*attempt) * time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", walleterrors.Wrap(walleterrors.KindNetwork, "all broadcast attempts failed", lastErr)
}
