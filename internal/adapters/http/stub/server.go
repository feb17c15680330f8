// Package stub serves an in-memory stand-in for the scoring backend: the
// REST endpoints the dashboard reads and the /ws/latest push channel.
package stub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/pkg/logger"
)

// APIPrefix is where the REST endpoints are mounted.
const APIPrefix = "/api/v1"

// PushPath is the websocket endpoint.
const PushPath = "/ws/latest"

const defaultPushTick = 5 * time.Second

// Server wires the stub routes over a Store.
type Server struct {
	store    *Store
	pushTick time.Duration
	logger   logger.Logger

	done     chan struct{}
	doneOnce sync.Once
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithPushTick sets how often /ws/latest checks the score count.
func WithPushTick(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pushTick = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates the stub server.
func NewServer(store *Store, opts ...Option) *Server {
	s := &Server{
		store:    store,
		pushTick: defaultPushTick,
		logger:   logger.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", MetricsMiddleware(s.handleRoot, "root", s.logger))
	mux.HandleFunc("GET /health", MetricsMiddleware(s.handleHealth, "health", s.logger))
	mux.HandleFunc("GET "+APIPrefix+"/issuers", MetricsMiddleware(s.handleIssuers, "issuers", s.logger))
	mux.HandleFunc("GET "+APIPrefix+"/issuers/{issuer_id}", MetricsMiddleware(s.handleIssuer, "issuer", s.logger))
	mux.HandleFunc("GET "+APIPrefix+"/scores", MetricsMiddleware(s.handleScores, "scores", s.logger))
	mux.HandleFunc("GET "+APIPrefix+"/scores/{issuer_id}/history", MetricsMiddleware(s.handleHistory, "history", s.logger))
	mux.HandleFunc("GET "+APIPrefix+"/explain/{score_id}", MetricsMiddleware(s.handleExplain, "explain", s.logger))
	mux.HandleFunc("POST "+APIPrefix+"/refresh", MetricsMiddleware(s.handleRefresh, "refresh", s.logger))
	mux.Handle("GET "+PushPath, websocket.Server{
		Handler: s.handleLatest,
		// any origin, like the CORS policy of the real backend
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
	})
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Close ends open push channels.
func (s *Server) Close() {
	s.doneOnce.Do(func() { close(s.done) })
}

type rootResponse struct {
	Message   string   `json:"message"`
	Endpoints []string `json:"endpoints"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Message: "Credit score stub backend is running",
		Endpoints: []string{
			APIPrefix + "/issuers",
			APIPrefix + "/issuers/{id}",
			APIPrefix + "/scores",
			APIPrefix + "/scores/{issuer_id}/history",
			APIPrefix + "/explain/{score_id}",
			APIPrefix + "/refresh",
			"/health",
			PushPath,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.Health{Status: "ok", Message: "Backend is healthy"})
}

func (s *Server) handleIssuers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Issuers())
}

func (s *Server) handleIssuer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "issuer_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	iss, err := s.store.Issuer(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, iss)
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	rows := s.store.Latest(r.URL.Query().Get("asset_class"))
	if rows == nil {
		rows = []LatestRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "issuer_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	h, err := s.store.History(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "score_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	d, err := s.store.Explain(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type refreshResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Added   int    `json:"added"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	n := s.store.Generate()
	s.logger.Info(r.Context(), "manual refresh", logger.Int("added", n))
	writeJSON(w, http.StatusOK, refreshResponse{Status: "ok", Message: "Data refresh triggered", Added: n})
}

type changeMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// handleLatest sends scores_changed whenever the score count differs from
// what this connection last saw, checking once per tick.
func (s *Server) handleLatest(ws *websocket.Conn) {
	defer ws.Close()
	ctx := ws.Request().Context()
	s.logger.Info(ctx, "push client connected", logger.String("requestId", ws.Request().Header.Get(requestIDHeader)))
	recordPushRequest()

	// the client never sends; a failed read means it went away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var discard []byte
		for websocket.Message.Receive(ws, &discard) == nil {
		}
	}()

	ticker := time.NewTicker(s.pushTick)
	defer ticker.Stop()
	last := -1
	for {
		if n := s.store.Count(); n != last {
			if err := websocket.JSON.Send(ws, changeMessage{Type: "scores_changed", Count: n}); err != nil {
				s.logger.Debug(ctx, "push send failed", logger.Error(err))
				return
			}
			last = n
		}
		select {
		case <-gone:
			s.logger.Info(ctx, "push client disconnected")
			return
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}

func pathID(r *http.Request, name string) (model.ID, error) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, ErrBadRequest
	}
	return model.ID(v), nil
}
