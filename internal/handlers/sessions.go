package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"racedash/internal/backend"
	"racedash/internal/charts"
	"racedash/internal/coordinator"
	"racedash/internal/dashboard"
	"racedash/internal/visibility"
	"racedash/pkg/logging/logging"
)

// DefaultViewportHeight is the initial viewport applied to new sessions.
const DefaultViewportHeight = 900.0

// SessionHandler serves the dashboard session API under /v1/sessions.
type SessionHandler struct {
	Sessions       *dashboard.Manager
	ViewportHeight float64
}

func NewSessionHandler(m *dashboard.Manager, viewportHeight float64) *SessionHandler {
	if viewportHeight <= 0 {
		viewportHeight = DefaultViewportHeight
	}
	return &SessionHandler{Sessions: m, ViewportHeight: viewportHeight}
}

// Routes mounts the session endpoints on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.CreateSession)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Post("/viewport", h.Scroll)
		r.Post("/load-all", h.LoadAll)
		r.Get("/stats", h.Stats)
		r.Get("/charts/{chart}", h.GetChart)
		r.Post("/charts/{chart}/trigger", h.TriggerChart)
		r.Post("/charts/{chart}/retry", h.RetryChart)
	})
}

type createSessionRequest struct {
	CSVData      string  `json:"csv_data"`
	IncludeStats bool    `json:"include_stats"`
	ViewportTop  float64 `json:"viewport_top"`
}

type sessionResponse struct {
	ID     string                `json:"id"`
	Charts []chartState          `json:"charts"`
	Stats  *backend.StatsPayload `json:"stats,omitempty"`
}

type chartState struct {
	Chart   charts.ID             `json:"chart"`
	Status  coordinator.Status    `json:"status"`
	Payload *backend.ChartPayload `json:"payload,omitempty"`
	Message string                `json:"message,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func toChartState(s coordinator.State) chartState {
	return chartState{Chart: s.Chart, Status: s.Status, Payload: s.Payload, Message: s.Message}
}

func toChartStates(states []coordinator.State) []chartState {
	out := make([]chartState, 0, len(states))
	for _, s := range states {
		out = append(out, toChartState(s))
	}
	return out
}

// CreateSession handles POST /v1/sessions. The new session mounts the full
// dashboard layout and applies the initial viewport, so priority and
// above-the-fold charts start loading right away.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.CSVData == "" {
		h.writeError(w, http.StatusBadRequest, "csv_data is required")
		return
	}

	s := h.Sessions.Create(req.CSVData)
	ctx = logging.WithFields(ctx, zap.String("session_id", s.ID()))
	logger = logging.L(ctx)
	if err := s.MountLayout(); err != nil {
		logger.Error("mount layout failed", zap.Error(err))
		_ = h.Sessions.Delete(s.ID())
		h.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	s.Scroll(visibility.Rect{Top: req.ViewportTop, Height: h.ViewportHeight})

	resp := sessionResponse{ID: s.ID()}
	if req.IncludeStats {
		stats, err := s.Stats(ctx)
		if err != nil {
			logger.Warn("stats fetch failed", zap.Error(err))
		} else {
			resp.Stats = stats
		}
	}
	resp.Charts = toChartStates(s.States())

	logger.Info("session_created",
		zap.Int("dataset_bytes", len(req.CSVData)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{ID: s.ID(), Charts: toChartStates(s.States())})
}

func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Scroll handles POST /v1/sessions/{id}/viewport with a {"top","height"} body.
func (h *SessionHandler) Scroll(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var vp visibility.Rect
	if !h.decode(w, r, &vp) {
		return
	}
	if vp.Height <= 0 {
		h.writeError(w, http.StatusBadRequest, "height must be positive")
		return
	}
	s.Scroll(vp)
	h.writeJSON(w, http.StatusOK, sessionResponse{ID: s.ID(), Charts: toChartStates(s.States())})
}

func (h *SessionHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.chart(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toChartState(c.State()))
}

// TriggerChart starts a chart load. With ?wait=true it answers once the
// chart left Loading.
func (h *SessionHandler) TriggerChart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.chart(w, r)
	if !ok {
		return
	}
	c.Trigger(r.Context())
	h.respondChart(w, r, c)
}

// RetryChart re-runs a failed chart load. Any other state is a 409.
func (h *SessionHandler) RetryChart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.chart(w, r)
	if !ok {
		return
	}
	if err := c.Retry(r.Context()); err != nil {
		if errors.Is(err, coordinator.ErrNotFailed) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondChart(w, r, c)
}

func (h *SessionHandler) respondChart(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator) {
	state := c.State()
	if r.URL.Query().Get("wait") == "true" {
		var err error
		state, err = c.Wait(r.Context())
		if err != nil && !errors.Is(err, coordinator.ErrClosed) {
			h.writeError(w, http.StatusGatewayTimeout, "chart still loading")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, toChartState(state))
}

func (h *SessionHandler) LoadAll(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	states, err := s.LoadAll(r.Context())
	if err != nil {
		logging.L(r.Context()).Warn("load all failed", zap.String("session_id", s.ID()), zap.Error(err))
		h.writeError(w, http.StatusGatewayTimeout, "charts still loading")
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{ID: s.ID(), Charts: toChartStates(states)})
}

func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	stats, err := s.Stats(r.Context())
	if err != nil {
		logging.L(r.Context()).Warn("stats fetch failed", zap.Error(err))
		h.writeError(w, http.StatusBadGateway, backend.DisplayMessage(err))
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool) {
	s, err := h.Sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) chart(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, false
	}
	id, err := charts.Parse(chi.URLParam(r, "chart"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	c, err := s.Chart(id)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return c, true
}

func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logging.L(r.Context()).Warn("invalid request", zap.Error(err))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// writeJSON is a small helper to send JSON responses consistently.
func (h *SessionHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *SessionHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorBody{Error: msg})
}
