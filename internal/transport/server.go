// Package transport is the wiring root: it upgrades WebSocket connections,
// authenticates them, and bridges decoded frames into the auth/dispatch/
// fanout/notify packages, per spec.md §4.6's Transport Listener.
//
// Its upgrader and route-registration shape are grounded on the teacher's
// internal/handlers/agent_websocket.go AgentWebSocketHandler: a struct
// holding a configured websocket.Upgrader plus RegisterRoutes(*gin.RouterGroup),
// query-parameter credential extraction before the upgrade, then delegation
// to a per-connection handler.
package transport

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vircadia/world-realtime-core/internal/apperr"
	"github.com/vircadia/world-realtime-core/internal/auth"
	"github.com/vircadia/world-realtime-core/internal/config"
	"github.com/vircadia/world-realtime-core/internal/dispatch"
	"github.com/vircadia/world-realtime-core/internal/fanout"
	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/middleware"
	"github.com/vircadia/world-realtime-core/internal/notify"
	"github.com/vircadia/world-realtime-core/internal/ws"
)

// Server owns the gin engine and every component the WebSocket and REST
// surfaces need to reach.
type Server struct {
	cfg      config.Config
	auth     *auth.Manager
	dispatch *dispatch.Dispatcher
	fanout   *fanout.Manager
	notifyB  *notify.Bridge
	registry *ws.Registry
	upgrader        websocket.Upgrader
	router          *gin.Engine
	http            *http.Server
	bootstrap       *auth.BootstrapIssuer
	operatorKeyHash string
	rateLimiter     *middleware.RateLimiter
}

// New wires the gin engine and registers every route, per spec.md §4.6.
func New(cfg config.Config, authMgr *auth.Manager, disp *dispatch.Dispatcher, fan *fanout.Manager, nb *notify.Bridge, registry *ws.Registry) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AllowedHTTPMethods())
	router.Use(middleware.StructuredLogger(middleware.DefaultStructuredLoggerConfig()))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.DefaultSizeLimiter())
	router.Use(middleware.Gzip(middleware.DefaultCompression))
	timeoutCfg := middleware.DefaultTimeoutConfig()
	if cfg.RequestTimeoutMs > 0 {
		timeoutCfg.Timeout = time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
	}
	router.Use(middleware.Timeout(timeoutCfg))

	s := &Server{
		cfg:         cfg,
		auth:        authMgr,
		dispatch:    disp,
		fanout:      fan,
		notifyB:     nb,
		registry:    registry,
		router:      router,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Connections are authenticated by session token, not origin.
				return true
			},
		},
	}

	s.registerRoutes()
	return s
}

// WithBootstrap attaches the admin/system bootstrap token issuer, enabling
// the /admin routes. A nil issuer (the default) leaves them reporting
// unavailable.
func (s *Server) WithBootstrap(issuer *auth.BootstrapIssuer) *Server {
	s.bootstrap = issuer
	return s
}

// WithOperatorKeyHash enables POST /admin/bootstrap-token, the long-lived
// operator key -> short-lived bootstrap JWT exchange.
func (s *Server) WithOperatorKeyHash(hash string) *Server {
	s.operatorKeyHash = hash
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.router.GET("/ws", s.rateLimiter.Middleware(), s.handleWebSocket)

	session := s.router.Group("/session")
	{
		session.POST("/validate", s.handleSessionValidate)
		session.POST("/logout", s.handleSessionLogout)
	}

	s.router.POST("/admin/bootstrap-token", s.rateLimiter.Middleware(), s.handleBootstrapTokenExchange)

	admin := s.router.Group("/admin")
	admin.Use(s.requireBootstrapToken)
	{
		admin.POST("/sessions/:id/invalidate", s.handleAdminInvalidateSession)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apperr.NotFound("route").ToResponse())
	})
}

// Start launches the HTTP(S) listener in the background. Errors other than
// a graceful Shutdown are sent to errCh.
func (s *Server) Start(errCh chan<- error) {
	addr := s.cfg.ListenHost + ":" + strconv.Itoa(s.cfg.ListenPort)
	s.http = &http.Server{Addr: addr, Handler: s.router}

	log := logging.Transport()
	log.Info().Str("addr", addr).Bool("tls", s.cfg.TLSEnabled).Msg("starting transport listener")

	go func() {
		var err error
		if s.cfg.TLSEnabled {
			err = s.http.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
}

// Shutdown stops accepting new connections and waits for in-flight requests
// to drain, bounded by ctx, per the teacher's graceful-shutdown shape in
// cmd/main.go.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
