// Package server exposes exchanges to remote tools over WebSocket. Each
// connection holds one pooled runtime for its lifetime and speaks the JSON
// protocol in protocol.go.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/cryguy/xchg"
	"github.com/cryguy/xchg/internal/config"
)

// acquireTimeout bounds how long a new connection waits for a runtime.
const acquireTimeout = 10 * time.Second

// Server serves the exchange endpoint.
type Server struct {
	engine *xchg.Engine
	store  *xchg.SnapshotStore
	cfg    config.ServerConfig
	log    *zap.Logger
}

// New creates a Server. store may be nil to disable snapshot ops.
func New(engine *xchg.Engine, store *xchg.SnapshotStore, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine: engine,
		store:  store,
		cfg:    cfg,
		log:    logger.With(zap.String("component", "server")),
	}
}

// Handler returns the HTTP handler: /exchange upgrades to WebSocket,
// /healthz reports liveness.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/exchange", s.handleExchange)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(s.engine.Name() + " ok\n"))
	})
	return mux
}

// Serve accepts connections on ln until ctx is done. At most
// cfg.MaxConns connections are accepted at once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("serving exchange", zap.String("addr", ln.Addr().String()), zap.Int("max_conns", s.cfg.MaxConns))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errc
		return err
	}
}

// ListenAndServe listens on cfg.Addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	if s.cfg.MaxMessageBytes > 0 {
		c.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	ctx := r.Context()

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	x, err := s.engine.Open(acquireCtx)
	cancel()
	if err != nil {
		s.log.Warn("no runtime for connection", zap.Error(err))
		_ = c.Close(websocket.StatusTryAgainLater, "no runtime available")
		return
	}
	sess := newSession(x, s.store, s.log)
	defer sess.close()

	log := s.log.With(zap.String("remote", r.RemoteAddr))
	log.Debug("exchange session opened")

	for {
		var req Request
		if err := s.read(ctx, c, &req); err != nil {
			switch {
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				log.Debug("exchange session closed")
			case errors.Is(err, context.DeadlineExceeded):
				_ = c.Close(websocket.StatusPolicyViolation, "idle timeout")
			default:
				log.Debug("reading request", zap.Error(err))
			}
			return
		}
		if err := wsjson.Write(ctx, c, sess.handle(ctx, req)); err != nil {
			log.Debug("writing response", zap.Error(err))
			return
		}
	}
}

func (s *Server) read(ctx context.Context, c *websocket.Conn, req *Request) error {
	if s.cfg.IdleTimeout <= 0 {
		return wsjson.Read(ctx, c, req)
	}
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.IdleTimeout)
	defer cancel()
	return wsjson.Read(readCtx, c, req)
}
