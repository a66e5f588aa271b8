package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/projection"
	"VaultLedger/internal/query"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps holds everything the HTTP API needs. Query endpoints read from the
// projection tables; admin endpoints inject operations into the core's input
// channel or act on the op log directly.
type Deps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	AdminIngest   *ingestion.AdminIngestService
	SnapshotMgr   *persistence.SnapshotManager
	HealthChecker *observability.HealthChecker
	StartTime     time.Time
}

// Server is the HTTP/JSON API: read queries, health probes, Prometheus
// metrics, and operator admin endpoints.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

func New(addr string, deps *Deps) *Server {
	h := &handlers{deps: deps, log: observability.NewLogger("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", deps.HealthChecker.LivenessHandler)
	r.Get("/readyz", deps.HealthChecker.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pools/{poolID}", h.getPoolSummary)
		r.Get("/pools/{poolID}/positions", h.listPoolPositions)
		r.Get("/pools/{poolID}/balances/{address}", h.getBalance)
		r.Get("/positions/{address}/liquidations", h.listLiquidationHistory)
		r.Get("/accounts/{address}/journal", h.listJournalHistory)
		r.Get("/system/solvency", h.getSolvency)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/oplog", h.getOpLogInfo)
			r.Post("/integrity/verify", h.verifyIntegrity)
			r.Post("/projections/rebuild", h.rebuildProjections)
			r.Post("/price", h.injectPriceUpdate)
			r.Post("/accrue-fee", h.injectAccrueFee)
			r.Post("/pause", h.injectPause)
			r.Post("/unpause", h.injectUnpause)
			r.Post("/cage", h.injectCage)
			r.Post("/uncage", h.injectUncage)
			r.Post("/cage-pool", h.injectCagePool)
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: h.log,
	}
}

// Start runs the server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("http shutdown")
		}
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type handlers struct {
	deps *Deps
	log  zerolog.Logger
}

// --- query endpoints ---

func (h *handlers) getPoolSummary(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	summary, err := h.deps.QueryService.GetPoolSummary(r.Context(), poolID)
	if err != nil {
		h.internalError(w, "pool summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handlers) listPoolPositions(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	limit := queryLimit(r, 50, 500)

	var afterAddr *string
	if after := r.URL.Query().Get("after"); after != "" {
		if !common.IsHexAddress(after) {
			writeError(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		afterAddr = &after
	}

	positions, err := h.deps.QueryService.GetPoolPositions(r.Context(), poolID, limit, afterAddr)
	if err != nil {
		h.internalError(w, "pool positions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	bal, err := h.deps.QueryService.GetBalance(r.Context(), poolID, addr)
	if err != nil {
		h.internalError(w, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *handlers) listLiquidationHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	limit := queryLimit(r, 50, 500)

	history, err := h.deps.QueryService.GetLiquidationHistory(r.Context(), addr, limit)
	if err != nil {
		h.internalError(w, "liquidation history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"liquidations": history})
}

func (h *handlers) listJournalHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	limit := queryLimit(r, 100, 500)

	var afterSeq *int64
	if s := r.URL.Query().Get("before_sequence"); s != "" {
		seq, err := strconv.ParseInt(s, 10, 64)
		if err != nil || seq <= 0 {
			writeError(w, http.StatusBadRequest, "invalid before_sequence")
			return
		}
		afterSeq = &seq
	}

	entries, err := h.deps.QueryService.GetJournalHistory(r.Context(), addr, limit, afterSeq)
	if err != nil {
		h.internalError(w, "journal history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *handlers) getSolvency(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.QueryService.GetSystemSolvency(r.Context())
	if err != nil {
		h.internalError(w, "solvency", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- admin endpoints ---

func (h *handlers) getOpLogInfo(w http.ResponseWriter, r *http.Request) {
	latest, err := h.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		h.internalError(w, "op log info", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sequence":  latest,
		"uptime_seconds": int64(time.Since(h.deps.StartTime).Seconds()),
	})
}

func (h *handlers) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		h.internalError(w, "verify integrity", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) rebuildProjections(w http.ResponseWriter, r *http.Request) {
	if err := projection.Rebuild(r.Context(), h.deps.DB); err != nil {
		h.internalError(w, "rebuild projections", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rebuilt": true})
}

func (h *handlers) injectPriceUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PoolID       string `json:"pool_id"`
		Price        string `json:"price"`
		FeedSequence int64  `json:"feed_sequence"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PoolID == "" {
		writeError(w, http.StatusBadRequest, "pool_id is required")
		return
	}
	price, ok := new(big.Int).SetString(req.Price, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	if err := h.deps.AdminIngest.InjectPriceUpdate(r.Context(), req.PoolID, price, req.FeedSequence); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

func (h *handlers) injectAccrueFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PoolID   string `json:"pool_id"`
		Sequence int64  `json:"sequence"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PoolID == "" {
		writeError(w, http.StatusBadRequest, "pool_id is required")
		return
	}

	if err := h.deps.AdminIngest.InjectAccrueFee(r.Context(), req.PoolID, req.Sequence); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

type senderRequest struct {
	Sender   string `json:"sender"`
	Sequence int64  `json:"sequence"`
}

func (h *handlers) injectPause(w http.ResponseWriter, r *http.Request) {
	h.injectSenderOp(w, r, h.deps.AdminIngest.InjectPause)
}

func (h *handlers) injectUnpause(w http.ResponseWriter, r *http.Request) {
	h.injectSenderOp(w, r, h.deps.AdminIngest.InjectUnpause)
}

func (h *handlers) injectCage(w http.ResponseWriter, r *http.Request) {
	h.injectSenderOp(w, r, h.deps.AdminIngest.InjectCage)
}

func (h *handlers) injectUncage(w http.ResponseWriter, r *http.Request) {
	h.injectSenderOp(w, r, h.deps.AdminIngest.InjectUncage)
}

func (h *handlers) injectSenderOp(
	w http.ResponseWriter,
	r *http.Request,
	inject func(context.Context, common.Address, int64) error,
) {
	var req senderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Sender) {
		writeError(w, http.StatusBadRequest, "invalid sender address")
		return
	}

	if err := inject(r.Context(), common.HexToAddress(req.Sender), req.Sequence); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

func (h *handlers) injectCagePool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender   string `json:"sender"`
		PoolID   string `json:"pool_id"`
		Sequence int64  `json:"sequence"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Sender) {
		writeError(w, http.StatusBadRequest, "invalid sender address")
		return
	}
	if req.PoolID == "" {
		writeError(w, http.StatusBadRequest, "pool_id is required")
		return
	}

	err := h.deps.AdminIngest.InjectCagePool(r.Context(), common.HexToAddress(req.Sender), req.PoolID, req.Sequence)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

// --- helpers ---

func (h *handlers) internalError(w http.ResponseWriter, what string, err error) {
	h.log.Error().Err(err).Str("handler", what).Msg("query failed")
	writeError(w, http.StatusInternalServerError, what+" failed")
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	s := chi.URLParam(r, "address")
	if !common.IsHexAddress(s) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func queryLimit(r *http.Request, def, max int) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
