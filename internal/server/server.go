// Package server exposes the gateway's HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"trade-desk-gateway/internal/balances"
	"trade-desk-gateway/internal/charts"
	"trade-desk-gateway/internal/domain"
	"trade-desk-gateway/internal/health"
	"trade-desk-gateway/internal/notify"
	"trade-desk-gateway/internal/observability"
)

// Server wires the gateway components behind HTTP handlers.
type Server struct {
	session *Session
	inbox   *notify.Inbox
	tracker *balances.Tracker
	charts  *charts.Fetcher
	health  *health.Poller

	log *logrus.Entry
}

// New creates a server over the given components. health may be nil when the
// poller is disabled.
func New(session *Session, inbox *notify.Inbox, tracker *balances.Tracker, fetcher *charts.Fetcher, poller *health.Poller) *Server {
	return &Server{
		session: session,
		inbox:   inbox,
		tracker: tracker,
		charts:  fetcher,
		health:  poller,
		log:     logrus.WithField("component", "server"),
	}
}

// Router builds the gin router.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/session", s.startSession)
		api.DELETE("/session", s.stopSession)

		api.GET("/notifications", s.listNotifications)
		api.GET("/notifications/settings", s.notificationSettings)
		api.POST("/notifications/seen", s.markSeen)
		api.POST("/notifications/opened", s.inboxOpened)

		api.GET("/balances", s.getBalances)
		api.POST("/balances/snapshot", s.applyBalanceSnapshot)

		api.GET("/chart", s.getChart)
		api.GET("/health", s.getHealth)
	}

	return r
}

// Run serves the API until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// apiError maps component errors onto HTTP responses. Structured API errors
// keep their upstream status; everything else is a 502.
func apiError(c *gin.Context, err error) {
	var apiErr *notify.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message})
		return
	}
	if errors.Is(err, notify.ErrNoCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

type sessionRequest struct {
	Identity string `json:"identity" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

func (s *Server) startSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.session.Start(c.Request.Context(), req.Identity, req.Token); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) stopSession(c *gin.Context) {
	s.session.Stop()
	c.Status(http.StatusNoContent)
}

func (s *Server) listNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notifications": s.inbox.Snapshot(),
		"unseen":        s.inbox.UnseenCount(),
	})
}

func (s *Server) notificationSettings(c *gin.Context) {
	settings, err := s.inbox.RefreshSettings(c.Request.Context())
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type markSeenRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

func (s *Server) markSeen(c *gin.Context) {
	var req markSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.inbox.MarkSeen(c.Request.Context(), req.IDs); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// inboxOpened marks every unseen record seen in one batched call, mirroring
// the dashboard behavior of opening the inbox drawer.
func (s *Server) inboxOpened(c *gin.Context) {
	if err := s.inbox.MarkAllSeen(c.Request.Context()); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getBalances(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Current())
}

// balanceSnapshotRequest is the account-state snapshot pushed by the chain
// watcher. Markets are keyed by market index.
type balanceSnapshotRequest struct {
	Memberships []domain.MarketMembership       `json:"memberships"`
	Markets     map[int]domain.MarketDescriptor `json:"markets"`
	OpenOrders  []domain.OpenOrdersAccount      `json:"openOrders"`
}

func (s *Server) applyBalanceSnapshot(c *gin.Context) {
	var req balanceSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	missing := s.tracker.Recompute(balances.Input{
		Memberships: req.Memberships,
		Markets:     balances.MapLookup(req.Markets),
		OpenOrders:  req.OpenOrders,
	})
	observability.RecordBalanceRecompute(missing)

	c.JSON(http.StatusOK, gin.H{
		"balances":       s.tracker.Current(),
		"missingMarkets": missing,
	})
}

func (s *Server) getChart(c *gin.Context) {
	base := c.Query("base")
	quote := c.Query("quote")
	days := c.DefaultQuery("days", "1")

	items := s.charts.FetchChartData(c.Request.Context(), base, quote, days)
	if len(items) == 0 {
		observability.RecordChartFetch("empty")
	} else {
		observability.RecordChartFetch("ok")
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) getHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, domain.PlatformStatus{State: domain.PlatformUnknown})
		return
	}

	status := s.health.Status()
	observability.UpdateClusterHealth(status.TPS, status.DBGood)
	c.JSON(http.StatusOK, status)
}
