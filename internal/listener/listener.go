// Package listener watches chain RPC endpoints for transactions touching
// addresses registered through WatchAddress, turning raw block data into
// the confirmed/reorged BlockEvent stream the rest of the service reacts
// to. Each PollingListener polls one BlockFetcher; Manager fans the
// resulting per-network event channels into one handler so a caller only
// has to register a single callback regardless of how many chains are
// live.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/defisafe/hotwallet/internal/storage"
	"github.com/defisafe/hotwallet/internal/walleterrors"
	"github.com/defisafe/hotwallet/pkg/models"
)

// BlockListener is anything that can watch a single chain for activity on a
// dynamic set of addresses and emit BlockEvents as blocks are confirmed or
// rolled back. PollingListener is the only implementation today; a
// WebSocket-subscription variant would satisfy the same interface.
type BlockListener interface {
	Start(ctx context.Context) error
	Stop() error
	WatchAddress(address string) error
	UnwatchAddress(address string) error
	Events() <-chan models.BlockEvent
}

// EventHandler receives every BlockEvent a Manager's listeners emit,
// including Reorged events for transactions that were rolled back. The
// walletd wiring in internal/cli supplies one that logs each event.
type EventHandler func(event models.BlockEvent) error

// BlockData is one fetched block: its own hash (for reorg comparison
// against what was previously stored at this height) and the transactions
// it carries.
type BlockData struct {
	Number uint64
	Hash   string
	Txs    []BlockTx
}

// BlockTx is a single transaction inside a fetched block.
type BlockTx struct {
	Hash   string
	From   string
	To     string
	Amount *big.Int
}

// BlockFetcher is the chain-specific half of a listener: everything an EVM
// or Solana client must expose for polling to work. The internal/chain
// clients do not implement it.
type BlockFetcher interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (*BlockData, error)
}

// PollingConfig tunes a PollingListener's confirmation behavior.
type PollingConfig struct {
	// ConfirmationDepth is how many blocks must sit on top of a
	// transaction's block before it is reported as confirmed.
	ConfirmationDepth uint64
}

const defaultConfirmationDepth = 12

// reorgWindow remembers the last ConfirmationDepth+1 blocks' hashes and the
// not-yet-confirmed events they produced, so that a later re-fetch of a
// height can be compared against what was seen before and, if it changed,
// every event built on top of the old chain can be retracted together.
type reorgWindow struct {
	depth   uint64
	hashes  map[uint64]string
	pending map[uint64][]models.BlockEvent
}

func newReorgWindow(depth uint64) *reorgWindow {
	return &reorgWindow{
		depth:   depth,
		hashes:  make(map[uint64]string),
		pending: make(map[uint64][]models.BlockEvent),
	}
}

// observe records block's hash at its height and reports whether a
// different hash was previously stored there, meaning the chain
// reorganized below this height.
func (w *reorgWindow) observe(number uint64, hash string) (reorged bool) {
	prev, known := w.hashes[number]
	w.hashes[number] = hash
	return known && prev != hash
}

func (w *reorgWindow) addPending(number uint64, ev models.BlockEvent) {
	w.pending[number] = append(w.pending[number], ev)
}

// evict drops book-keeping for heights below the confirmation window so
// the maps don't grow without bound on a long-running listener.
func (w *reorgWindow) evict(upToHeight uint64) {
	if upToHeight <= w.depth+1 {
		return
	}
	delete(w.hashes, upToHeight-w.depth-1)
}

// takeReorged removes and returns all pending events from heights in
// [from, through], marked as reorged, so the caller can replay them to
// subscribers before those heights are re-processed.
func (w *reorgWindow) takeReorged(from, through uint64) []models.BlockEvent {
	var out []models.BlockEvent
	for h := from; h <= through; h++ {
		for _, ev := range w.pending[h] {
			ev.Reorged = true
			ev.Confirmed = false
			out = append(out, ev)
		}
		delete(w.pending, h)
		delete(w.hashes, h)
	}
	return out
}

// takeConfirmed removes and returns, marked confirmed, every pending event
// whose block now has at least depth confirmations under currentHeight.
func (w *reorgWindow) takeConfirmed(currentHeight uint64) []models.BlockEvent {
	var out []models.BlockEvent
	for h, events := range w.pending {
		if currentHeight < h+w.depth {
			continue
		}
		for _, ev := range events {
			ev.Confirmed = true
			out = append(out, ev)
		}
		delete(w.pending, h)
	}
	return out
}

// highestHash returns the greatest block height the window currently has a
// stored hash for, the upper bound a reorg needs to unwind through.
func (w *reorgWindow) highestHash() uint64 {
	var max uint64
	for h := range w.hashes {
		if h > max {
			max = h
		}
	}
	return max
}

// PollingListener watches one chain by repeatedly polling for its latest
// block height and walking forward from the last height it processed,
// comparing each block's hash against what it saw before to catch reorgs.
type PollingListener struct {
	network  models.Network
	interval time.Duration
	fetcher  BlockFetcher
	watching storage.WatchStore
	window   *reorgWindow

	events chan models.BlockEvent
	tip    uint64

	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPollingListener builds a listener for network, polling fetcher every
// interval and watching addresses tracked in ws. A zero ConfirmationDepth
// in cfg falls back to defaultConfirmationDepth.
func NewPollingListener(network models.Network, interval time.Duration, ws storage.WatchStore, fetcher BlockFetcher, cfg PollingConfig) *PollingListener {
	if cfg.ConfirmationDepth == 0 {
		cfg.ConfirmationDepth = defaultConfirmationDepth
	}
	return &PollingListener{
		network:  network,
		interval: interval,
		fetcher:  fetcher,
		watching: ws,
		window:   newReorgWindow(cfg.ConfirmationDepth),
		events:   make(chan models.BlockEvent, 100),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "listener", "network", string(network)),
	}
}

func (l *PollingListener) Start(ctx context.Context) error {
	ctx, l.cancel = context.WithCancel(ctx)
	l.logger.Info("listener starting", "poll_interval", l.interval, "confirmation_depth", l.window.depth)
	go l.run(ctx)
	return nil
}

func (l *PollingListener) Stop() error {
	if l.cancel != nil {
		l.cancel()
	}
	<-l.done
	close(l.events)
	l.logger.Info("listener stopped")
	return nil
}

func (l *PollingListener) WatchAddress(address string) error {
	if err := l.watching.Add(address); err != nil {
		return walleterrors.Wrap(walleterrors.KindStorage, "listener: watch address", err)
	}
	l.logger.Info("watching address", "address", address)
	return nil
}

func (l *PollingListener) UnwatchAddress(address string) error {
	if err := l.watching.Remove(address); err != nil {
		return walleterrors.Wrap(walleterrors.KindStorage, "listener: unwatch address", err)
	}
	l.logger.Info("unwatched address", "address", address)
	return nil
}

func (l *PollingListener) Events() <-chan models.BlockEvent {
	return l.events
}

func (l *PollingListener) run(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.tick(ctx); err != nil {
				l.logger.Error("poll tick failed", "error", err)
			}
		}
	}
}

// tick advances from the last processed height to the chain's current tip,
// then promotes any events that crossed the confirmation threshold.
func (l *PollingListener) tick(ctx context.Context) error {
	latest, err := l.fetcher.LatestBlockNumber(ctx)
	if err != nil {
		return walleterrors.Wrap(walleterrors.KindNetwork, "listener: fetch chain head", err)
	}

	for height := l.tip + 1; height <= latest; height++ {
		if err := l.ingest(ctx, height); err != nil {
			return walleterrors.Wrap(walleterrors.KindNetwork, "listener: ingest block", err)
		}
	}

	for _, ev := range l.window.takeConfirmed(latest) {
		l.logger.Info("transaction confirmed", "block", ev.BlockNumber, "tx", ev.TxHash)
		if !l.emit(ctx, ev) {
			return ctx.Err()
		}
	}

	return nil
}

// ingest fetches one block, reconciles it against the reorg window, and
// emits an unconfirmed event for every transaction touching a watched
// address.
func (l *PollingListener) ingest(ctx context.Context, height uint64) error {
	block, err := l.fetcher.GetBlock(ctx, height)
	if err != nil {
		return err
	}

	if l.window.observe(height, block.Hash) {
		l.logger.Warn("chain reorganization detected", "block", height, "new_hash", block.Hash)
		for _, ev := range l.window.takeReorged(height, l.window.highestHash()) {
			l.logger.Warn("reorg: retracting event", "block", ev.BlockNumber, "tx", ev.TxHash)
			if !l.emit(ctx, ev) {
				return ctx.Err()
			}
		}
	}
	l.window.evict(height)
	l.tip = height

	watched, err := l.watching.List()
	if err != nil {
		return err
	}
	addrs := make(map[string]bool, len(watched))
	for _, a := range watched {
		addrs[a] = true
	}

	for _, tx := range block.Txs {
		if !addrs[tx.To] && !addrs[tx.From] {
			continue
		}
		ev := models.BlockEvent{
			Network:     l.network,
			BlockNumber: height,
			TxHash:      tx.Hash,
			From:        tx.From,
			To:          tx.To,
			Amount:      tx.Amount,
		}
		l.window.addPending(height, ev)
		l.logger.Info("detected transaction", "block", height, "tx", tx.Hash, "to", tx.To)
		if !l.emit(ctx, ev) {
			return ctx.Err()
		}
	}

	return nil
}

// emit sends ev on the event channel, returning false if ctx was cancelled
// before the send completed.
func (l *PollingListener) emit(ctx context.Context, ev models.BlockEvent) bool {
	select {
	case l.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Manager supervises one BlockListener per chain and routes every event
// they produce to a single EventHandler, so callers never deal with
// per-network fan-out directly.
type Manager struct {
	listeners map[models.Network]BlockListener
	handler   EventHandler
	logger    *slog.Logger
}

// NewManager returns a Manager with no listeners registered; call
// RegisterListener per chain before StartAll.
func NewManager(handler EventHandler) *Manager {
	return &Manager{
		listeners: make(map[models.Network]BlockListener),
		handler:   handler,
		logger:    slog.Default().With("component", "listener_manager"),
	}
}

func (m *Manager) RegisterListener(network models.Network, l BlockListener) {
	m.listeners[network] = l
}

// StartAll starts every registered listener and spawns one goroutine per
// network draining its event channel into the shared handler.
func (m *Manager) StartAll(ctx context.Context) error {
	for network, l := range m.listeners {
		if err := l.Start(ctx); err != nil {
			return walleterrors.Wrap(walleterrors.KindNetwork, fmt.Sprintf("listener: start %s", network), err)
		}
		go m.drain(network, l)
	}
	m.logger.Info("all listeners started", "count", len(m.listeners))
	return nil
}

func (m *Manager) drain(network models.Network, l BlockListener) {
	for event := range l.Events() {
		if err := m.handler(event); err != nil {
			m.logger.Error("event handler failed", "network", network, "block", event.BlockNumber, "error", err)
		}
	}
}

func (m *Manager) StopAll() {
	for network, l := range m.listeners {
		if err := l.Stop(); err != nil {
			m.logger.Error("stop listener failed", "network", network, "error", err)
		}
	}
}

// WatchAddress registers address with the listener for network, or returns
// a KindConfig error if no listener is registered for it.
func (m *Manager) WatchAddress(network models.Network, address string) error {
	l, ok := m.listeners[network]
	if !ok {
		return walleterrors.New(walleterrors.KindConfig, "no listener registered for "+string(network))
	}
	return l.WatchAddress(address)
}
