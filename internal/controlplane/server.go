package controlplane

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/history"
)

var cpLog = logrus.WithField("component", "controlplane")

// Config 控制面配置
type Config struct {
	Addr string `yaml:"addr"` // 留空则不启动
}

// Server 只读状态 API
type Server struct {
	cfg     Config
	tracker *Tracker
	trades  *history.Store // 可为 nil（backtest 不落库）

	httpSrv *http.Server
}

// NewServer 创建控制面服务
func NewServer(cfg Config, tracker *Tracker, trades *history.Store) *Server {
	return &Server{cfg: cfg, tracker: tracker, trades: trades}
}

// Router 构建路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/positions", s.handlePositions)
	api.GET("/trades", s.handleTrades)
	api.GET("/stats", s.handleStats)
	return r
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Status())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.tracker.Positions()})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.trades == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []any{}})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	trades, err := s.trades.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleStats(c *gin.Context) {
	if s.trades == nil {
		c.JSON(http.StatusOK, gin.H{"stats": []any{}})
		return
	}
	stats, err := s.trades.StatsByStrategy()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Start 启动 HTTP 服务（异步）；Addr 为空直接跳过
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		return nil
	}
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		cpLog.Infof("control plane listening on %s", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cpLog.Errorf("control plane server: %v", err)
		}
	}()
	return nil
}

// Shutdown 优雅停机
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
