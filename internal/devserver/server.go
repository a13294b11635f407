// Package devserver is an in-memory reference implementation of the
// incident and checklist API, used for demos and client tests.
//
// Incident submissions are normalized the way the production service does
// it: both incidentType and incident_type are accepted, coordinates come
// from location or from flat latitude/longitude fields, and a missing date
// or time is derived from timestamp. Reports keep the ID the client chose,
// so resubmitting a report is idempotent.
//
// Checklists are stored per bearer token.
package devserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/clock"
	"github.com/roach88/readykit/internal/report"
)

// ShutdownTimeout bounds graceful shutdown in Run.
const ShutdownTimeout = 5 * time.Second

// Incident is a stored report. It marshals as the report alone.
type Incident struct {
	report.IncidentReport
	ReceivedAt time.Time `json:"-"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithClock sets the clock used for received-at times.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// Server holds incidents and checklists in memory.
//
// Thread-safety: all methods are safe for concurrent use.
type Server struct {
	log   *zap.Logger
	clock clock.Clock

	mu         sync.Mutex
	incidents  []Incident
	byID       map[string]int
	checklists map[string][]map[string]any
	posts      int
}

// New creates an empty server.
func New(opts ...Option) *Server {
	s := &Server{
		log:        zap.NewNop(),
		clock:      clock.System{},
		byID:       make(map[string]int),
		checklists: make(map[string][]map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.accessLog())

	api := r.Group("/api")
	api.GET("/", s.root)
	api.GET("/incidents", s.listIncidents)
	api.POST("/incidents", s.createIncident)

	user := api.Group("/user")
	user.Use(s.requireToken())
	{
		user.GET("/checklist", s.getChecklist)
		user.POST("/checklist", s.saveChecklist)
	}
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("Dev server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Incidents returns stored incidents in arrival order.
func (s *Server) Incidents() []Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Incident(nil), s.incidents...)
}

// Posts returns how many incident submissions were accepted, duplicates
// included.
func (s *Server) Posts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}
		c.Set("token", strings.TrimSpace(token))
		c.Next()
	}
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "readykit reference API"})
}

func (s *Server) listIncidents(c *gin.Context) {
	c.JSON(http.StatusOK, s.Incidents())
}

func (s *Server) createIncident(c *gin.Context) {
	var p incidentPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	r, err := p.normalize(s.clock.Now())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	s.posts++
	idx, dup := s.byID[r.ID]
	if !dup {
		idx = len(s.incidents)
		s.incidents = append(s.incidents, Incident{IncidentReport: r, ReceivedAt: s.clock.Now()})
		s.byID[r.ID] = idx
	}
	stored := s.incidents[idx]
	s.mu.Unlock()

	if dup {
		s.log.Info("Duplicate incident", zap.String("report_id", r.ID))
		c.JSON(http.StatusOK, gin.H{"incident": stored})
		return
	}
	s.log.Info("Incident received",
		zap.String("report_id", r.ID),
		zap.String("incident_type", r.IncidentType))
	c.JSON(http.StatusCreated, gin.H{"incident": stored})
}

func (s *Server) getChecklist(c *gin.Context) {
	token := c.GetString("token")
	s.mu.Lock()
	items, ok := s.checklists[token]
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusOK, gin.H{"checklist": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"checklist": gin.H{"checklist_data": items}})
}

func (s *Server) saveChecklist(c *gin.Context) {
	var body struct {
		Items []map[string]any `json:"checklist_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	token := c.GetString("token")
	now := s.clock.Now().UTC()
	s.mu.Lock()
	s.checklists[token] = body.Items
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"message": "Checklist saved successfully",
		"checklist": gin.H{
			"checklist_data": body.Items,
			"updated_at":     now.Format(time.RFC3339),
		},
	})
}
