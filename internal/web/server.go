// Package web is the HTTP surface: the tool viewer page and the beacon
// endpoint through which embedded pages drive their session trackers.
package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"toolhost/internal/session"
	"toolhost/internal/stats"
	"toolhost/internal/store"
	"toolhost/internal/telemetry"
	"toolhost/internal/tool"
)

// SessionCookie persists the opaque session id on the client; one browser,
// one id. Readable by the beacon script, so not http-only.
const SessionCookie = "toolhost_session"

const cookieMaxAge = 60 * 60 * 24 * 365

// Config wires the server's collaborators.
type Config struct {
	Store     store.Store
	Submitter *telemetry.Submitter
	Counter   *stats.Counter
	Renderer  *tool.Renderer
	Logger    *zap.Logger
	// Session carries tracker tuning; SessionID is ignored (assigned per
	// visitor).
	Session session.Options
}

// Server owns the routes and the live-session registry.
type Server struct {
	cfg      Config
	log      *zap.Logger
	registry *registry
}

// NewServer builds the server and its gin handler.
func NewServer(cfg Config) (*Server, *gin.Engine) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, log: cfg.Logger}
	s.registry = newRegistry(func(meta session.ClientMeta, id string) *session.Tracker {
		opts := cfg.Session
		opts.SessionID = id
		opts.Logger = cfg.Logger
		return session.New(cfg.Store, cfg.Submitter, cfg.Counter, meta, opts)
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/t/:id", s.handleView)
	r.POST("/api/track", s.handleTrack)
	return s, r
}

// Shutdown ends every live session, best-effort.
func (s *Server) Shutdown() {
	s.registry.endAll()
}

// metaFromRequest captures client-reported attributes from request headers.
func metaFromRequest(c *gin.Context) session.ClientMeta {
	locale := c.GetHeader("Accept-Language")
	if i := strings.IndexAny(locale, ",;"); i >= 0 {
		locale = locale[:i]
	}
	return session.ClientMeta{
		UserAgent: c.Request.UserAgent(),
		Locale:    locale,
		Platform:  strings.Trim(c.GetHeader("Sec-CH-UA-Platform"), `"`),
		Referrer:  c.Request.Referer(),
		EntryURL:  c.Request.URL.Path,
		Mobile:    c.GetHeader("Sec-CH-UA-Mobile") == "?1",
	}
}

// handleView serves the sandboxed viewer for one tool. This is the only path
// that blocks on a store read; its failure modes each get their own panel.
func (s *Server) handleView(c *gin.Context) {
	id := c.Param("id")

	// Page load starts (or resumes) the visitor session, then records the
	// entry view.
	sid, _ := c.Cookie(SessionCookie)
	trk := s.registry.start(metaFromRequest(c), sid)
	if trk.ID() != sid {
		c.SetCookie(SessionCookie, trk.ID(), cookieMaxAge, "/", "", false, false)
	}
	trk.RecordPageView(c.Request.URL.Path, id)

	res, err := s.cfg.Renderer.Render(c.Request.Context(), id)
	if err != nil {
		s.log.Info("tool resolution failed", zap.String("tool_id", id), zap.Error(err))
		status, body := renderPanel(err)
		c.Data(status, "text/html; charset=utf-8", body)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", res.Page)
}

type trackRequest struct {
	Type      string                 `json:"type" binding:"required"`
	SessionID string                 `json:"sessionId"`
	Source    string                 `json:"source"`
	Path      string                 `json:"path"`
	Title     string                 `json:"title"`
	ToolID    string                 `json:"toolId"`
	Action    string                 `json:"action"`
	Metadata  map[string]store.Value `json:"metadata"`
	Meta      session.ClientMeta     `json:"meta"`
}

// handleTrack is the beacon endpoint. Telemetry must never error the client:
// anything beyond malformed input answers 204, whatever happens store-side.
func (s *Server) handleTrack(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed track event"})
		return
	}

	if req.Type == "start" {
		meta := req.Meta
		if meta.UserAgent == "" {
			meta = metaFromRequest(c)
		}
		trk := s.registry.start(meta, req.SessionID)
		c.JSON(http.StatusOK, gin.H{"sessionId": trk.ID()})
		return
	}

	trk, ok := s.registry.get(req.SessionID)
	if !ok {
		// Lost or expired session: absorbed by design.
		c.Status(http.StatusNoContent)
		return
	}

	switch req.Type {
	case "page_view":
		trk.RecordPageView(req.Path, req.Title)
	case "activity":
		trk.RecordActivity(activitySource(req.Source))
	case "interaction":
		trk.RecordToolInteraction(req.ToolID, req.Action, req.Metadata)
	case "end":
		s.registry.end(req.SessionID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown track event type"})
		return
	}
	c.Status(http.StatusNoContent)
}

func activitySource(s string) session.ActivitySource {
	switch s {
	case "visible":
		return session.SourceVisible
	case "key":
		return session.SourceKey
	case "scroll":
		return session.SourceScroll
	case "touch":
		return session.SourceTouch
	default:
		return session.SourcePointer
	}
}
