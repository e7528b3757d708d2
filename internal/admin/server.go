package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/edgeworker/internal/observability"
	"github.com/danmuck/edgeworker/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

// StatusSource is the session the admin surface reports on.
type StatusSource interface {
	Status() worker.Status
}

// Server is the optional loopback admin surface of one worker process.
type Server struct {
	Addr     string
	Appeared time.Time

	source StatusSource
	router *gin.Engine
	http   *http.Server
}

func New(addr string, source StatusSource) *Server {
	observability.RegisterMetrics()
	workerID := ""
	if source != nil {
		workerID = source.Status().WorkerID
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminMiddleware(log.Logger, workerID))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Addr:     addr,
		Appeared: time.Now(),
		source:   source,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		st := s.status()
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"worker":  st.WorkerID,
			"phase":   st.Phase,
			"version": Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		st := s.status()
		ready := st.StartupError == "" && st.Phase == worker.PhaseServing
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		body := gin.H{
			"ready":  ready,
			"worker": st.WorkerID,
			"phase":  st.Phase,
		}
		if st.StartupError != "" {
			body["startup_error"] = st.StartupError
		}
		c.JSON(code, body)
	})

	s.router.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.status())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) status() worker.Status {
	if s.source == nil {
		return worker.Status{Phase: worker.PhaseNew, Operations: []string{}}
	}
	return s.source.Status()
}

// Start listens on Addr and serves in the background. It returns the bound
// address, which differs from Addr when Addr used port 0.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return "", err
	}
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", ln.Addr().String()).Msg("admin server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin server listening")
	return ln.Addr().String(), nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
