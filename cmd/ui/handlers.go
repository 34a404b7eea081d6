package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"paper-trading-ledger-go/internal/ledger"
	"paper-trading-ledger-go/internal/models"
	"paper-trading-ledger-go/internal/papertrader"
	"paper-trading-ledger-go/internal/report"

	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log    *zap.Logger
	engine *papertrader.Engine
	now    func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, engine *papertrader.Engine) *APIHandler {
	return &APIHandler{log: log.Named("api"), engine: engine, now: time.Now}
}

// Register mounts the API endpoints on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.HealthHandler)
	mux.HandleFunc("GET /api/trades", h.TradesHandler)
	mux.HandleFunc("GET /api/statistics", h.StatisticsHandler)
	mux.HandleFunc("POST /api/positions", h.PositionsHandler)
	mux.HandleFunc("POST /api/refresh", h.RefreshHandler)
	mux.HandleFunc("POST /api/reconcile", h.ReconcileHandler)
	mux.HandleFunc("POST /api/clear", h.ClearHandler)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthHandler reports that the server is up.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TradesHandler returns trades filtered by ?symbol= or ?date=, or all of them.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	date := r.URL.Query().Get("date")
	if symbol != "" && date != "" {
		writeError(w, http.StatusBadRequest, "filter by symbol or date, not both")
		return
	}

	store := h.engine.Store()
	var (
		trades []models.Trade
		err    error
	)
	switch {
	case symbol != "":
		trades, err = store.FindBySymbol(r.Context(), symbol)
	case date != "":
		d, perr := models.ParseDate(date)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		trades, err = store.FindByDate(r.Context(), d)
	default:
		trades, err = store.ListAllOrderedByDate(r.Context())
	}
	if err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get trades")
		return
	}

	writeJSON(w, http.StatusOK, trades)
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Last30Days report.Summary `json:"last_30_days"`
	AllTime    report.Summary `json:"all_time"`
}

// StatisticsHandler summarizes reconciled profit, overall and for trades
// entered in the last 30 days.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := h.engine.Store().ListAllOrderedByDate(r.Context())
	if err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to calculate statistics")
		return
	}

	since := models.DateOnly(h.now()).AddDate(0, 0, -30)
	var recent []models.Trade
	for _, t := range trades {
		if !t.TradeDate.Before(since) {
			recent = append(recent, t)
		}
	}

	writeJSON(w, http.StatusOK, StatisticsResponse{
		Last30Days: report.Summarize(recent),
		AllTime:    report.Summarize(trades),
	})
}

// symbolList accepts either a JSON array of symbols or a comma-separated string.
type symbolList []string

func (s *symbolList) UnmarshalJSON(data []byte) error {
	var list string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = papertrader.ParseSymbols(list)
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return errors.New("symbols must be a string or an array of strings")
	}
	*s = papertrader.ParseSymbols(strings.Join(arr, ","))
	return nil
}

type positionsRequest struct {
	Date  string     `json:"date"`
	Long  symbolList `json:"long"`
	Short symbolList `json:"short"`
}

type dateRequest struct {
	Date string `json:"date"`
}

// batchResponse is the JSON form of a papertrader.BatchReport.
type batchResponse struct {
	ID        string            `json:"id"`
	Command   string            `json:"command"`
	Date      string            `json:"date"`
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
	Trades    []models.Trade    `json:"trades"`
}

func newBatchResponse(b *papertrader.BatchReport) batchResponse {
	resp := batchResponse{
		ID:        b.ID,
		Command:   string(b.Command),
		Date:      b.Date.Format(time.DateOnly),
		Succeeded: b.Succeeded,
		Failed:    make(map[string]string, len(b.Failed)),
		Trades:    b.Trades,
	}
	if resp.Succeeded == nil {
		resp.Succeeded = []string{}
	}
	if resp.Trades == nil {
		resp.Trades = []models.Trade{}
	}
	for s, err := range b.Failed {
		resp.Failed[s] = err.Error()
	}
	return resp
}

// requestDate parses a YYYY-MM-DD date; empty means today.
func (h *APIHandler) requestDate(s string) (time.Time, error) {
	if s == "" {
		return models.DateOnly(h.now()), nil
	}
	return models.ParseDate(s)
}

func (h *APIHandler) writeBatch(w http.ResponseWriter, batch *papertrader.BatchReport, err error) {
	if err != nil {
		h.log.Error("Batch aborted", zap.Error(err))
		status := http.StatusInternalServerError
		if !errors.Is(err, ledger.ErrStorage) {
			// Cancelled by the client.
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newBatchResponse(batch))
}

// PositionsHandler records the submitted long and short positions.
func (h *APIHandler) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	var req positionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	date, err := h.requestDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if len(req.Long) == 0 && len(req.Short) == 0 {
		writeError(w, http.StatusBadRequest, "no symbols given")
		return
	}

	batch, err := h.engine.SubmitPositions(r.Context(), date, req.Long, req.Short)
	h.writeBatch(w, batch, err)
}

func (h *APIHandler) decodeDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req dateRequest
	// An empty body means today.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return time.Time{}, false
	}
	date, err := h.requestDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

// RefreshHandler downloads price history and sizes every trade on the requested date.
func (h *APIHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	date, ok := h.decodeDate(w, r)
	if !ok {
		return
	}
	batch, err := h.engine.RefreshAndSize(r.Context(), date)
	h.writeBatch(w, batch, err)
}

// ReconcileHandler prices every trade on the requested date against the latest session.
func (h *APIHandler) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	date, ok := h.decodeDate(w, r)
	if !ok {
		return
	}
	batch, err := h.engine.Reconcile(r.Context(), date)
	h.writeBatch(w, batch, err)
}

// ClearHandler deletes every trade. The body must be {"confirm": true}.
func (h *APIHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Confirm {
		writeError(w, http.StatusBadRequest, `clearing the ledger requires {"confirm": true}`)
		return
	}

	n, err := h.engine.ClearAll(r.Context())
	if err != nil {
		h.log.Error("Failed to clear ledger", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear ledger")
		return
	}
	h.log.Warn("Ledger cleared over HTTP", zap.Int64("deleted", n))
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
