// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/billing"
	"github.com/marketforge/cpv/pkg/config"
	"github.com/marketforge/cpv/pkg/gate"
	"github.com/marketforge/cpv/pkg/log"
	"github.com/marketforge/cpv/pkg/metric"
	"github.com/marketforge/cpv/pkg/qualify"
	"github.com/marketforge/cpv/pkg/ranking"
	"github.com/marketforge/cpv/pkg/viewledger"
)

// Server exposes the engine over HTTP: view recording, qualification,
// ranking reads and the investor gate on the public router; billing
// administration and metrics on the admin router.
type Server struct {
	views   *viewledger.Ledger
	engine  *qualify.Engine
	billing *billing.Ledger
	ranker  *ranking.Ranker
	gate    *gate.Gate
	metrics *metric.Metrics
	cfg     config.Config
	log     log.Logger
}

// NewServer wires the engine components into an HTTP surface.
func NewServer(views *viewledger.Ledger, engine *qualify.Engine, bl *billing.Ledger, ranker *ranking.Ranker, g *gate.Gate, m *metric.Metrics, cfg config.Config, logger log.Logger) *Server {
	return &Server{
		views:   views,
		engine:  engine,
		billing: bl,
		ranker:  ranker,
		gate:    g,
		metrics: m,
		cfg:     cfg,
		log:     logger,
	}
}

// Router builds the public gin router.
func (s *Server) Router(release bool) *gin.Engine {
	if release {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/views", s.recordView)
		v1.POST("/views/:id/qualify", s.qualifyView)
		v1.GET("/products", s.listRanked)
		v1.GET("/products/:id/ranking", s.getRanking)
		v1.POST("/investor/verify", s.verifyInvestor)
		v1.GET("/bids/feed", s.bidFeed)
	}

	return router
}

type recordViewRequest struct {
	ProductID   string `json:"product_id" binding:"required"`
	SessionID   string `json:"session_id"`
	ViewType    string `json:"view_type" binding:"required,oneof=direct search related"`
	UserID      string `json:"user_id"`
	SearchQuery string `json:"search_query"`
	Referrer    string `json:"referrer"`
}

func (s *Server) recordView(c *gin.Context) {
	start := time.Now()

	var req recordViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.OpTimeout)
	defer cancel()

	result, err := s.views.RecordView(ctx, viewledger.RecordRequest{
		ProductID:   req.ProductID,
		SessionID:   req.SessionID,
		ViewType:    core.ViewType(req.ViewType),
		UserID:      req.UserID,
		SearchQuery: req.SearchQuery,
		Referrer:    req.Referrer,
		UserAgent:   c.Request.UserAgent(),
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	if result.Deduped {
		s.metrics.ViewsDeduped.Inc()
	} else {
		s.metrics.ViewsRecorded.Inc()
	}
	s.metrics.RecordDuration.Observe(time.Since(start).Seconds())

	c.JSON(http.StatusCreated, result)
}

type qualifyRequest struct {
	DurationMs     int64 `json:"duration_ms"`
	ScrollDepth    int   `json:"scroll_depth"`
	ClickedContact bool  `json:"clicked_contact"`
}

func (s *Server) qualifyView(c *gin.Context) {
	start := time.Now()

	var req qualifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.OpTimeout)
	defer cancel()

	result, err := s.engine.Qualify(ctx, c.Param("id"), qualify.Signal{
		DurationMs:     req.DurationMs,
		ScrollDepth:    req.ScrollDepth,
		ClickedContact: req.ClickedContact,
	})
	if err != nil {
		if errors.Is(err, core.ErrInvariant) {
			s.metrics.InvariantErrors.Inc()
		}
		s.fail(c, err)
		return
	}

	switch {
	case result.Charged:
		s.metrics.ViewsQualified.Inc()
		s.metrics.ChargesApplied.Inc()
	case result.NeedsCredits:
		s.metrics.ViewsQualified.Inc()
		s.metrics.ChargesUnbilled.Inc()
	case result.Reason == "below-threshold":
		s.metrics.ViewsRejected.Inc()
	}
	s.metrics.QualifyDuration.Observe(time.Since(start).Seconds())

	c.JSON(http.StatusOK, result)
}

func (s *Server) getRanking(c *gin.Context) {
	sig, err := s.ranker.GetRankingSignal(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id":     sig.ProductID,
		"placement_tier": sig.PlacementTier,
		"current_bid":    sig.CurrentBid,
	})
}

func (s *Server) listRanked(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": s.ranker.RankedProducts()})
}

type verifyRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) verifyInvestor(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.gate.Verify(c.ClientIP(), req.Code)
	if err != nil {
		s.fail(c, err)
		return
	}

	switch {
	case result.Limited:
		s.metrics.GateLockouts.Inc()
		c.JSON(http.StatusTooManyRequests, result)
	case result.Granted:
		s.metrics.GateGranted.Inc()
		c.JSON(http.StatusOK, result)
	default:
		s.metrics.GateRejected.Inc()
		c.JSON(http.StatusUnauthorized, result)
	}
}

// fail maps the error taxonomy onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrTransient):
		status = http.StatusServiceUnavailable
	case errors.Is(err, core.ErrInvariant):
		s.log.Error("invariant violation surfaced to API", "error", err.Error())
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
