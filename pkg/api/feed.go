// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/marketforge/cpv/core"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bidUpdate is one message on the bidding feed from the vendor-facing
// bidding UI.
type bidUpdate struct {
	ProductID string          `json:"product_id"`
	Bid       decimal.Decimal `json:"bid"`
}

// bidAck acknowledges an applied update with the resulting signal.
type bidAck struct {
	OK            bool   `json:"ok"`
	ProductID     string `json:"product_id"`
	PlacementTier int    `json:"placement_tier,omitempty"`
	Error         string `json:"error,omitempty"`
}

// bidFeed ingests bid updates over a websocket and applies each to the
// placement ranker.
func (s *Server) bidFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("bid feed upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	s.log.Info("bid feed connected", "remote", c.Request.RemoteAddr)

	for {
		var update bidUpdate
		if err := conn.ReadJSON(&update); err != nil {
			s.log.Debug("bid feed disconnected", "error", err.Error())
			return
		}

		ack := bidAck{ProductID: update.ProductID}
		if err := s.ranker.SetBid(update.ProductID, update.Bid); err != nil {
			ack.Error = err.Error()
			if errors.Is(err, core.ErrNotFound) {
				ack.Error = "unknown product"
			}
		} else {
			s.metrics.BidUpdates.Inc()
			ack.OK = true
			if sig, err := s.ranker.GetRankingSignal(update.ProductID); err == nil {
				ack.PlacementTier = sig.PlacementTier
			}
		}

		if err := conn.WriteJSON(ack); err != nil {
			s.log.Debug("bid feed write failed", "error", err.Error())
			return
		}
	}
}
