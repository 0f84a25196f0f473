package engine

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler serves the engine's read-only HTTP surface:
//
//	GET /metrics          Prometheus exposition
//	GET /healthz          200 once the pool is running
//	GET /status           tier sizes and pool counters
//	GET /results          most recent results (?limit=N, default 20)
//	GET /results/{id}     one result
func (e *Engine) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", e.handleHealth)
	mux.HandleFunc("GET /status", e.handleStatus)
	mux.HandleFunc("GET /results", e.handleRecent)
	mux.HandleFunc("GET /results/{id}", e.handleResult)
	return mux
}

type statusResponse struct {
	Scheduler string         `json:"scheduler"`
	Tiers     map[string]int `json:"tiers"`
	Capacity  int            `json:"capacity"`
	Pending   int            `json:"pending"`
	Workers   int            `json:"workers"`
	Active    int            `json:"active"`
	Processed int64          `json:"processed"`
	Stored    int            `json:"stored"`
}

func (e *Engine) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !e.Pool.Running() {
		http.Error(w, "worker pool not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (e *Engine) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := e.Scheduler.Stats()
	e.writeJSON(w, http.StatusOK, statusResponse{
		Scheduler: e.Scheduler.Status(),
		Tiers: map[string]int{
			"HIGH":    st.High,
			"NORMAL":  st.Normal,
			"LOW":     st.Low,
			"BACKLOG": st.Backlog,
		},
		Capacity:  st.Capacity,
		Pending:   st.Pending(),
		Workers:   e.Pool.Size(),
		Active:    e.Pool.ActiveWorkers(),
		Processed: e.Pool.TotalProcessed(),
		Stored:    e.Store.Len(),
	})
}

func (e *Engine) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	e.writeJSON(w, http.StatusOK, e.Store.Recent(limit))
}

func (e *Engine) handleResult(w http.ResponseWriter, r *http.Request) {
	res, ok := e.Store.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "result not found", http.StatusNotFound)
		return
	}
	e.writeJSON(w, http.StatusOK, res)
}

// writeJSON encodes v before writing the status, so an unencodable value
// becomes a 500 instead of an empty 200.
func (e *Engine) writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		e.logger.Error("encoding response", zap.Error(err))
		http.Error(w, "response could not be encoded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(buf.Bytes()); err != nil {
		e.logger.Warn("writing response", zap.Error(err))
	}
}
