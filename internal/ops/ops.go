// Package ops is the HTTP control surface for a running live/paper
// runtime: health, mode, and kill-switch endpoints. All state is read
// from the runtime's kill switch and risk manager; the only mutation it
// exposes is the explicit kill-switch reset.
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/risk"
	"github.com/autovant/tradingcore/internal/telemetry"
)

// RuntimeView is the minimal read surface ops needs into a live runtime,
// satisfied by *live.Runtime.
type RuntimeView interface {
	KillSwitch() *risk.KillSwitch
	RiskManager() *risk.Manager
}

// Server exposes the ops HTTP API for one market/mode runtime.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	market  domain.Market
	mode    domain.TradingMode
	runtime RuntimeView
	logger  zerolog.Logger
}

// New builds the gin engine and registers routes; metrics is optional and
// when non-nil mounts /metrics via promhttp, which serves the default
// Prometheus registry.
func New(addr string, market domain.Market, mode domain.TradingMode, rt RuntimeView, metrics *telemetry.Metrics, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, market: market, mode: mode, runtime: rt, logger: logger}
	s.http = &http.Server{Addr: addr, Handler: engine}

	engine.GET("/health", s.health)
	engine.GET("/api/mode", s.getMode)
	engine.GET("/api/risk/killswitch", s.getKillSwitch)
	engine.POST("/api/risk/killswitch/reset", s.resetKillSwitch)
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return s
}

// Run serves until ctx is cancelled, then gracefully shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Market    string    `json:"market"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Market:    string(s.market),
		Mode:      string(s.mode),
		Timestamp: time.Now().UTC(),
	})
}

type modeResponse struct {
	Market string `json:"market"`
	Mode   string `json:"mode"`
}

func (s *Server) getMode(c *gin.Context) {
	c.JSON(http.StatusOK, modeResponse{Market: string(s.market), Mode: string(s.mode)})
}

type killSwitchResponse struct {
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) getKillSwitch(c *gin.Context) {
	ks := s.runtime.KillSwitch()
	c.JSON(http.StatusOK, killSwitchResponse{
		Triggered: ks.IsTriggered(),
		Reason:    ks.TriggeredReason(),
	})
}

// resetKillSwitch re-arms the kill switch. This is a manual, deliberate
// action; no runtime component ever calls it automatically.
func (s *Server) resetKillSwitch(c *gin.Context) {
	ks := s.runtime.KillSwitch()
	if !ks.IsTriggered() {
		c.JSON(http.StatusOK, killSwitchResponse{Triggered: false})
		return
	}
	ks.Reset()
	s.logger.Warn().Str("market", string(s.market)).Msg("kill switch reset via ops API")
	c.JSON(http.StatusOK, killSwitchResponse{Triggered: false})
}
