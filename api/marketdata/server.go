// Package marketdata exposes a read-only gin HTTP monitoring surface
// over the core: best bid/ask, quality scores, subscription counts, and
// latency percentiles. Grounded on the teacher's gin-handler shape (thin
// handler funcs closed over a domain object) used throughout its
// deleted api/order package.
package marketdata

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/sequex-io/marketsync/internal/marketdata/bus"
	"github.com/sequex-io/marketsync/internal/marketdata/metrics"
	"github.com/sequex-io/marketsync/internal/marketdata/subscription"
)

// Server wires the shared bus/metrics/subscription collaborators into a
// gin.Engine of read-only monitoring routes.
type Server struct {
	engine  *gin.Engine
	bus     *bus.Bus
	metrics *metrics.Metrics
	subs    *subscription.Manager
}

func New(b *bus.Bus, m *metrics.Metrics, subs *subscription.Manager) *Server {
	s := &Server{engine: gin.New(), bus: b, metrics: m, subs: subs}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/symbols/:symbol/book", s.handleBook)
	s.engine.GET("/symbols/:symbol/quality", s.handleQuality)
	s.engine.GET("/symbols/:symbol/impact", s.handleMarketImpact)
	s.engine.GET("/symbols/:symbol/liquidity", s.handleLiquidityProfile)
	s.engine.GET("/subscriptions", s.handleSubscriptionCounters)
	s.engine.GET("/metrics", s.handleMetrics)
}

func (s *Server) handleBook(c *gin.Context) {
	symbol := c.Param("symbol")
	mob, ok := s.bus.ManagedOrderBook(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not tracked"})
		return
	}
	ob := mob.OrderBook()
	resp := gin.H{
		"symbol":         symbol,
		"sync_state":     mob.State().String(),
		"sequence":       ob.Sequence(),
		"is_synchronized": mob.IsSynchronized(),
	}
	if bid, ok := ob.BestBid(); ok {
		resp["best_bid"] = gin.H{"price": bid.Price.String(), "qty": bid.Qty.String()}
	}
	if ask, ok := ob.BestAsk(); ok {
		resp["best_ask"] = gin.H{"price": ask.Price.String(), "qty": ask.Qty.String()}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleQuality(c *gin.Context) {
	symbol := c.Param("symbol")
	qa, ok := s.bus.QualityAnalyzer(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not tracked"})
		return
	}
	score := qa.QualityScore()
	c.JSON(http.StatusOK, gin.H{
		"symbol":       symbol,
		"freshness":    score.Freshness,
		"completeness": score.Completeness,
		"consistency":  score.Consistency,
		"reliability":  score.Reliability,
		"overall":      score.Overall,
	})
}

func (s *Server) handleMarketImpact(c *gin.Context) {
	symbol := c.Param("symbol")
	mob, ok := s.bus.ManagedOrderBook(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not tracked"})
		return
	}

	qtyStr := c.Query("qty")
	qty, err := decimal.NewFromString(qtyStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid qty"})
		return
	}
	isBid := c.Query("side") == "bid"

	impact := mob.OrderBook().MarketImpact(qty, isBid)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "qty": qtyStr, "side": c.Query("side"), "avg_fill_price": impact.String()})
}

func (s *Server) handleLiquidityProfile(c *gin.Context) {
	symbol := c.Param("symbol")
	mob, ok := s.bus.ManagedOrderBook(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not tracked"})
		return
	}
	isBid := c.Query("side") == "bid"

	priceRange, err := decimal.NewFromString(defaultIfEmpty(c.Query("range"), "100"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	step, err := decimal.NewFromString(defaultIfEmpty(c.Query("step"), "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid step"})
		return
	}

	points := mob.OrderBook().LiquidityProfile(isBid, priceRange, step)

	out := make([]gin.H, 0, len(points))
	for _, p := range points {
		out = append(out, gin.H{"price": p.Price.String(), "depth": p.Depth.String()})
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "side": c.Query("side"), "points": out})
}

func (s *Server) handleSubscriptionCounters(c *gin.Context) {
	counters := s.subs.CountersSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"total":   counters.Total,
		"pending": counters.Pending,
		"active":  counters.Active,
		"error":   counters.Error,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	p50 := s.metrics.PercentileNs(50)
	p99 := s.metrics.PercentileNs(99)
	pStr := c.Query("p")
	var custom int64
	if pStr != "" {
		if p, err := strconv.ParseFloat(pStr, 64); err == nil {
			custom = s.metrics.PercentileNs(p)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"events":       s.metrics.Events(),
		"drops":        s.metrics.Drops(),
		"reconnects":   s.metrics.Reconnects(),
		"gaps":         s.metrics.Gaps(),
		"p50_ns":       p50,
		"p99_ns":       p99,
		"requested_ns": custom,
	})
}
