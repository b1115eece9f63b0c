package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"pmgate/internal/audit"
	"pmgate/internal/config"
	"pmgate/internal/drawdown"
	"pmgate/internal/engine"
	"pmgate/internal/portfolio"
)

// Server exposes the ops API: health, status, kill switch, audit lookup and
// Prometheus metrics. Everything under /api/v1 requires a bearer token.
type Server struct {
	cfg       *config.APIConfig
	engine    *engine.Engine
	drawdown  *drawdown.Controller
	portfolio *portfolio.Manager
	storage   audit.Storage
	registry  *prometheus.Registry
	logger    *logrus.Entry
	srv       *http.Server
}

// NewServer creates the ops API server
func NewServer(cfg *config.APIConfig, eng *engine.Engine, dd *drawdown.Controller, pf *portfolio.Manager, storage audit.Storage, registry *prometheus.Registry, logger *logrus.Entry) *Server {
	return &Server{
		cfg:       cfg,
		engine:    eng,
		drawdown:  dd,
		portfolio: pf,
		storage:   storage,
		registry:  registry,
		logger:    logger,
	}
}

// router assembles the route table
func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	router.POST("/api/v1/token", s.handleToken)

	v1 := router.Group("/api/v1")
	v1.Use(s.authRequired())
	{
		v1.GET("/status", s.handleStatus)
		v1.POST("/killswitch", s.handleKillSwitch)
		v1.GET("/decisions/:forecast_id", s.handleDecisions)
	}
	return router
}

// Start begins serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.router(),
	}

	s.logger.WithField("addr", s.srv.Addr).Info("ops API listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// handleToken exchanges operator credentials for a short-lived JWT
func (s *Server) handleToken(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if req.Username != s.cfg.OperatorUser ||
		bcrypt.CompareHashAndPassword([]byte(s.cfg.OperatorPasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.Username,
		"iat": now.Unix(),
		"exp": now.Add(s.cfg.TokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      signed,
		"expires_at": now.Add(s.cfg.TokenTTL).UTC(),
	})
}

// authRequired validates the bearer token on protected routes
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := jwt.Parse(header[len(prefix):], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, _ := claims["sub"].(string); sub != "" {
				c.Set("operator", sub)
			}
		}
		c.Next()
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	dd := s.drawdown.State()
	pf := s.portfolio.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"drawdown": dd,
		"portfolio": gin.H{
			"bankroll_usd":        pf.BankrollUSD,
			"equity_usd":          pf.EquityUSD(),
			"available_usd":       pf.AvailableCapitalUSD(),
			"open_positions":      pf.OpenPositionCount(),
			"daily_realized_loss": pf.DailyRealizedLoss,
			"daily_exposure_usd":  pf.DailyExposureUSD,
			"category_exposure":   pf.CategoryExposure,
		},
	})
}

// handleKillSwitch toggles the manual kill switch through the engine so the
// toggle lands in the audit trail and cancels a cycle in flight
func (s *Server) handleKillSwitch(c *gin.Context) {
	var req struct {
		On     bool   `json:"on"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.On && req.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason required when engaging"})
		return
	}

	actor := c.GetString("operator")
	changed := s.engine.KillSwitch(c.Request.Context(), req.On, req.Reason, actor)
	c.JSON(http.StatusOK, gin.H{
		"changed": changed,
		"state":   s.drawdown.State(),
	})
}

// handleDecisions returns the full audit chain for one forecast
func (s *Server) handleDecisions(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "audit storage not configured"})
		return
	}

	records, err := s.storage.QueryByForecast(c.Request.Context(), c.Param("forecast_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
