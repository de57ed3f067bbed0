// File: internal/control/server.go
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// Constants for WebSocket timeouts and limits (based on Gorilla WebSocket examples).
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 8192
	// Send buffer size
	sendChannelSize = 256

	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

const (
	MsgTypeSnapshot = "snapshot"
	MsgTypeEvent    = "event"
)

// Server hosts the control surface for one executor.
type Server struct {
	cfg      config.ControlConfig
	logger   *zap.Logger
	exec     Controller
	handlers *Handlers
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
	tokens   *TokenManager
	upgrader websocket.Upgrader
}

// NewServer wires the HTTP surface. gatherer may be nil, in which case
// /metrics is not served.
func NewServer(cfg config.ControlConfig, logger *zap.Logger, exec Controller, urls URLSource, gatherer prometheus.Gatherer) *Server {
	logger = logger.Named("control")
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		exec:     exec,
		handlers: NewHandlers(logger, exec, urls),
		gatherer: gatherer,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		tokens:   NewTokenManager(cfg.AuthSecret, 0),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), cfg.AllowedOrigins)
		},
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.checkOrigin)

	// The status stream is long lived; keep it out of the timeout and logging group.
	r.With(s.authenticate).Get("/ws/v1/status", s.handleStatusStream)

	r.Group(func(r chi.Router) {
		r.Use(s.requestLogger)
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(s.rateLimit)

		s.handlers.RegisterRoutes(r, s.authenticate)
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Control server listening", zap.String("address", ln.Addr().String()))
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down control server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}
	<-errCh
	s.logger.Info("Control server stopped.")
	return nil
}

// rateLimit applies one token bucket to every API request. There is a single
// client population (the local operator), so the bucket is not keyed.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.handlers.respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkOrigin rejects browser requests from pages that are neither loopback
// nor listed in control.allowed_origins.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !originAllowed(origin, s.cfg.AllowedOrigins) {
			s.logger.Warn("Rejected cross-origin request",
				zap.String("origin", origin),
				zap.String("path", r.URL.Path),
			)
			s.handlers.respondWithError(w, http.StatusForbidden, "Origin not allowed.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate requires a valid bearer token when control.auth_secret is set.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.tokens.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token := tokenFromRequest(r)
		if token == "" {
			s.handlers.respondWithError(w, http.StatusUnauthorized, ErrMissingToken.Error())
			return
		}
		subject, err := s.tokens.Verify(token)
		if err != nil {
			s.logger.Info("Rejected control token", zap.Error(err))
			s.handlers.respondWithError(w, http.StatusUnauthorized, "Invalid token.")
			return
		}
		s.logger.Debug("Authenticated control request", zap.String("subject", subject))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// wsClient represents a single status stream subscriber.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	send   chan StatusMessage
}

// handleStatusStream upgrades the connection, sends the persisted snapshot and
// then forwards every executor event until the peer goes away.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", zap.Error(err))
		return
	}
	s.logger.Debug("Status stream opened.", zap.String("remoteAddr", r.RemoteAddr))

	// Hijacked connections are not closed by http.Server.Shutdown.
	stopClose := context.AfterFunc(r.Context(), func() { conn.Close() })
	defer stopClose()

	events, release := s.exec.Subscribe()
	client := &wsClient{
		server: s,
		conn:   conn,
		send:   make(chan StatusMessage, sendChannelSize),
	}

	if snap, err := s.exec.Status(r.Context()); err != nil {
		s.logger.Warn("Failed to load snapshot for status stream", zap.Error(err))
	} else {
		client.queue(StatusMessage{Type: MsgTypeSnapshot, Snapshot: &snap})
	}

	closed := make(chan struct{})
	go client.writePump()
	go func() {
		defer close(client.send)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				client.queue(StatusMessage{Type: MsgTypeEvent, Event: &ev})
			case <-closed:
				return
			}
		}
	}()

	client.readPump()
	release()
	close(closed)
	s.logger.Debug("Status stream closed.", zap.String("remoteAddr", r.RemoteAddr))
}

// readPump discards client frames; it exists to process pongs and detect closure.
func (c *wsClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.server.logger.Error("Failed to set initial read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

// writePump owns all writes to the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.server.logger.Debug("Error writing status message", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// queue hands msg to the write pump, dropping it if the client is too slow.
func (c *wsClient) queue(msg StatusMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	select {
	case c.send <- msg:
	default:
		c.server.logger.Warn("Status stream buffer full, dropping message.", zap.String("type", msg.Type))
	}
}

