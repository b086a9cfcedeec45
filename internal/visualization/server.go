package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/session"
)

// Server serves read-only renderings of a live session and the process
// metrics over HTTP.
type Server struct {
	sess       *session.Session
	lang       string
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a new graph server for sess.
func NewServer(sess *session.Session, lang string) *Server {
	return &Server{sess: sess, lang: lang}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDOT)
	mux.HandleFunc("GET /api/graph", s.handleGraph)
	mux.HandleFunc("GET /api/graph.dot", s.handleDOT)
	mux.HandleFunc("GET /api/results", s.handleResults)
	mux.HandleFunc("GET /api/explain", s.handleExplain)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// ListenAndServe starts the HTTP server on addr, or an OS-assigned localhost
// port when addr is empty, and blocks until the context is cancelled.
// Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = "localhost:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.mu.Unlock()

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.Write([]byte(RenderDOT(s.sess.Snapshot(), s.lang)))
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RenderJSON(s.sess.Snapshot(), s.lang))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session":   s.sess.ID(),
		"running":   s.sess.Running(),
		"results":   s.sess.Results(s.lang),
		"guideline": s.sess.Guideline(),
		"prognosis": s.sess.Summary(s.lang),
	})
}

// handleExplain breaks down one node's probability.
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("node")
	if id == "" {
		http.Error(w, "missing 'node' query parameter", http.StatusBadRequest)
		return
	}
	ex, err := s.sess.Explain(id)
	if errors.Is(err, network.ErrUnknownNode) {
		http.Error(w, "node not found: "+id, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "explain error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
