// Package api exposes the wallet core over a JSON/HTTP surface (spec
// §6): a net/http ServeMux using Go 1.22 method+path routing,
// constant-time bearer API-key auth, a per-key token-bucket rate
// limiter, and a Prometheus metrics endpoint. Grounded on the routing
// shape of original_source/src/api/server.rs (the method+path table
// this mux reproduces) and on OKaluzny-wallet-demo's logging idiom
// (one *slog.Logger per component, structured fields on every call).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/defisafe/hotwallet/internal/config"
	"github.com/defisafe/hotwallet/internal/walleterrors"
	"github.com/defisafe/hotwallet/internal/walletmanager"
	"github.com/defisafe/hotwallet/pkg/models"
)

// RateLimiter is the narrow interface the server depends on, named in
// spec.md §1 as an out-of-scope collaborator whose interface we pin.
// TokenBucketLimiter is the production implementation.
type RateLimiter interface {
	Allow(key string) bool
}

// TokenBucketLimiter grants each key its own golang.org/x/time/rate
// limiter, created lazily on first use.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

// NewTokenBucketLimiter returns a RateLimiter granting perSec requests
// per second (burst up to burst) to each distinct key.
func NewTokenBucketLimiter(perSec float64, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Limit(perSec),
		burst:    burst,
	}
}

// Allow reports whether a request under key may proceed right now.
func (l *TokenBucketLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.perSec, l.burst)
		l.limiters[key] = lim
	}
	return lim.Allow()
}

// Metrics holds the Prometheus collectors exposed on GET
// /api/metrics, grounded on the postalsys-Muti-Metroo pack repo's use
// of github.com/prometheus/client_golang.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	registry *prometheus.Registry
}

// NewMetrics builds a fresh, process-local metrics registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotwallet_http_requests_total",
			Help: "Total HTTP requests handled, by route and status.",
		}, []string{"route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "hotwallet_http_request_duration_seconds",
			Help: "HTTP request duration in seconds, by route.",
		}, []string{"route"}),
		registry: reg,
	}
	reg.MustRegister(m.Requests, m.Duration)
	return m
}

// Server wires the wallet orchestrator to an http.Handler.
type Server struct {
	mgr     *walletmanager.Manager
	cfg     config.Config
	limiter RateLimiter
	metrics *Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New builds a Server. limiter may be nil to disable rate limiting
// (tests only); a production caller always supplies one.
func New(mgr *walletmanager.Manager, cfg config.Config, limiter RateLimiter, metrics *Metrics) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{
		mgr:     mgr,
		cfg:     cfg,
		limiter: limiter,
		metrics: metrics,
		logger:  slog.Default().With("component", "api"),
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// ServeHTTP implements http.Handler, applying CORS headers ahead of
// routing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CORSAllowOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.handle("GET /api/health", s.withMetrics("health", s.handleHealth))
	s.handle("POST /api/wallets", s.withMetrics("create_wallet", s.authenticated(s.rateLimited(s.handleCreateWallet))))
	s.handle("GET /api/wallets", s.withMetrics("list_wallets", s.authenticated(s.rateLimited(s.handleListWallets))))
	s.handle("DELETE /api/wallets/{name}", s.withMetrics("delete_wallet", s.authenticated(s.rateLimited(s.handleDeleteWallet))))
	s.handle("GET /api/wallets/{name}/balance", s.withMetrics("get_balance", s.authenticated(s.rateLimited(s.handleGetBalance))))
	s.handle("POST /api/wallets/{name}/send", s.withMetrics("send", s.authenticated(s.rateLimited(s.handleSend))))
	s.handle("POST /api/wallets/{name}/send_multi_sig", s.withMetrics("send_multi_sig", s.authenticated(s.rateLimited(s.handleSendMultiSig))))
	s.handle("GET /api/wallets/{name}/history", s.withMetrics("history", s.authenticated(s.rateLimited(s.handleHistory))))
	s.handle("GET /api/wallets/{name}/backup", s.withMetrics("backup", s.authenticated(s.rateLimited(s.handleBackup))))
	s.handle("POST /api/wallets/restore", s.withMetrics("restore", s.authenticated(s.rateLimited(s.handleRestore))))
	s.handle("POST /api/wallets/{name}/rotate-signing-key", s.withMetrics("rotate_signing_key", s.authenticated(s.rateLimited(s.handleRotateSigningKey))))
	s.mux.Handle("GET /api/metrics", promhttp.HandlerFor(s.metrics.registryOrDefault(), promhttp.HandlerOpts{}))
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, h)
}

func (m *Metrics) registryOrDefault() *prometheus.Registry {
	if m.registry == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// withMetrics records a request counter and duration histogram for
// route, keyed by the final response status code.
func (s *Server) withMetrics(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.Requests.WithLabelValues(route, statusClass(rec.status)).Inc()
		s.metrics.Duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// authenticated rejects requests whose bearer API key does not match
// the configured key in constant time (spec §6).
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented := bearerToken(r.Header.Get("Authorization"))
		if !s.cfg.CheckAPIKey(presented) {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key", "AUTH_FAILED")
			return
		}
		next(w, r)
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return header
}

// rateLimited enforces one token-bucket per presented API key, per
// spec.md §6's 429 status code.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			key := bearerToken(r.Header.Get("Authorization"))
			if !s.limiter.Allow(key) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE_LIMITED")
				return
			}
		}
		next(w, r)
	}
}

// errorResponse is the body shape spec.md §6 fixes for every
// non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeWalletError maps a walleterrors.Kind to its spec-mandated
// status code, hiding CryptoError causes unless DevPrintSecrets is
// set (spec §7).
func (s *Server) writeWalletError(w http.ResponseWriter, err error, code string) {
	kind := walleterrors.KindOf(err)
	status := http.StatusInternalServerError
	message := err.Error()

	switch kind {
	case walleterrors.KindValidation:
		status = http.StatusBadRequest
	case walleterrors.KindAuth:
		status = http.StatusUnauthorized
	case walleterrors.KindNotFound:
		status = http.StatusNotFound
	case walleterrors.KindPolicy:
		status = http.StatusForbidden
	case walleterrors.KindNetwork:
		status = http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
	case walleterrors.KindCrypto, walleterrors.KindStorage, walleterrors.KindConfig:
		status = http.StatusInternalServerError
	}

	if kind == walleterrors.KindCrypto && !s.cfg.DevPrintSecrets {
		message = "an internal cryptographic error occurred"
	}
	s.logger.Warn("request failed", "kind", kind, "code", code, "error", err)
	writeError(w, status, message, code)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createWalletRequest struct {
	Name        string `json:"name"`
	QuantumSafe bool   `json:"quantum_safe"`
}

type walletResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	QuantumSafe bool   `json:"quantum_safe"`
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "WALLET_CREATION_FAILED")
		return
	}
	info, err := s.mgr.CreateWallet(r.Context(), req.Name, req.QuantumSafe)
	if err != nil {
		s.writeWalletError(w, err, "WALLET_CREATION_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{ID: info.ID, Name: info.Name, QuantumSafe: info.QuantumSafe})
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	names, err := s.mgr.ListWallets(r.Context())
	if err != nil {
		s.writeWalletError(w, err, "LIST_WALLETS_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.mgr.DeleteWallet(r.Context(), name); err != nil {
		s.writeWalletError(w, err, "DELETE_WALLET_FAILED")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	network := models.Network(r.URL.Query().Get("network"))
	if network == "" {
		writeError(w, http.StatusBadRequest, "network query parameter is required", "GET_BALANCE_FAILED")
		return
	}
	balance, err := s.mgr.GetBalance(r.Context(), name, network)
	if err != nil {
		s.writeWalletError(w, err, "GET_BALANCE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"network": string(network),
		"balance": balance.String(),
	})
}

type sendTransactionRequest struct {
	ToAddress string `json:"to_address"`
	Amount    string `json:"amount"`
	Network   string `json:"network"`
}

type transactionResponse struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req sendTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "TRANSACTION_FAILED")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be an integer string in minimal units", "TRANSACTION_FAILED")
		return
	}
	txn, err := s.mgr.SendTransaction(r.Context(), name, models.Network(req.Network), req.ToAddress, amount)
	if err != nil {
		s.writeWalletError(w, err, "TRANSACTION_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, transactionResponse{TxHash: txn.TxHash, Status: "sent"})
}

type signedEntry struct {
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
	Recovery  *byte  `json:"recovery,omitempty"`
}

type sendMultiSigRequest struct {
	ToAddress  string        `json:"to_address"`
	Amount     string        `json:"amount"`
	Network    string        `json:"network"`
	Threshold  uint8         `json:"threshold"`
	Signatures []signedEntry `json:"signatures"`
}

// handleSendMultiSig performs the full propose -> bind -> collect ->
// execute lifecycle in one request, since the signatures travel in
// the request body rather than across separate propose/sign calls.
func (s *Server) handleSendMultiSig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req sendMultiSigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "MULTI_SIG_FAILED")
		return
	}
	if len(req.Signatures) < int(req.Threshold) {
		writeError(w, http.StatusBadRequest, "insufficient signatures", "MULTI_SIG_FAILED")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be an integer string in minimal units", "MULTI_SIG_FAILED")
		return
	}

	proposalID, _, err := s.mgr.ProposeMultiSig(r.Context(), name, models.Network(req.Network), req.ToAddress, amount, req.Threshold, nil)
	if err != nil {
		s.writeWalletError(w, err, "MULTI_SIG_FAILED")
		return
	}

	for _, entry := range req.Signatures {
		pubkey, sig, perr := decodeSignedEntry(entry)
		if perr != nil {
			_ = s.mgr.CancelMultiSig(proposalID)
			writeError(w, http.StatusBadRequest, perr.Error(), "MULTI_SIG_FAILED")
			return
		}
		if _, err := s.mgr.SignMultiSigProposal(proposalID, pubkey, sig); err != nil {
			_ = s.mgr.CancelMultiSig(proposalID)
			s.writeWalletError(w, err, "MULTI_SIG_FAILED")
			return
		}
	}

	txn, err := s.mgr.ExecuteMultiSig(r.Context(), proposalID)
	if err != nil {
		s.writeWalletError(w, err, "MULTI_SIG_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, transactionResponse{TxHash: txn.TxHash, Status: "sent"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": s.mgr.History(name),
	})
}

type backupResponse struct {
	Version    string  `json:"version"`
	Alg        string  `json:"alg"`
	KEKID      *string `json:"kek_id"`
	Nonce      string  `json:"nonce"`
	Ciphertext string  `json:"ciphertext"`
	Wallet     string  `json:"wallet"`
}

// handleBackup requires a prior operator approval gate
// (config.BackupApproved, spec §7 PolicyError) and never writes the
// plaintext mnemonic to the wire — backup callers are expected to
// encrypt it under an operator key, matching the encrypted backup
// format in spec.md §6.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	seed, err := s.mgr.BackupWallet(r.Context(), name)
	if err != nil {
		s.writeWalletError(w, err, "BACKUP_FAILED")
		return
	}
	defer seed.Destroy()

	plaintext, verr := seed.View()
	if verr != nil {
		s.writeWalletError(w, verr, "BACKUP_FAILED")
		return
	}
	ciphertextB64, nonceB64, err := encryptBackupPayload(plaintext, name)
	if err != nil {
		s.writeWalletError(w, err, "BACKUP_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, backupResponse{
		Version:    "1",
		Alg:        "AES-256-GCM",
		KEKID:      nil,
		Nonce:      nonceB64,
		Ciphertext: ciphertextB64,
		Wallet:     name,
	})
}

type restoreWalletRequest struct {
	Name        string `json:"name"`
	SeedPhrase  string `json:"seed_phrase"`
	QuantumSafe bool   `json:"quantum_safe"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "RESTORE_FAILED")
		return
	}
	info, err := s.mgr.RestoreWallet(r.Context(), req.Name, req.SeedPhrase, req.QuantumSafe)
	if err != nil {
		s.writeWalletError(w, err, "RESTORE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{ID: info.ID, Name: info.Name, QuantumSafe: info.QuantumSafe})
}

type rotateSigningKeyResponse struct {
	Wallet     string `json:"wallet"`
	OldVersion int    `json:"old_version"`
	NewVersion int    `json:"new_version"`
}

func (s *Server) handleRotateSigningKey(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	oldV, newV, err := s.mgr.RotateSigningKey(r.Context(), name)
	if err != nil {
		s.writeWalletError(w, err, "ROTATION_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, rotateSigningKeyResponse{Wallet: name, OldVersion: oldV, NewVersion: newV})
}
