package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"spate/internal/domain"
	"spate/internal/service"
	"spate/internal/snapshot"
)

const eventUpdateTorrentList = "updateTorrentList"

// Handler wires HTTP routes to the torrent service and the snapshot hub.
type Handler struct {
	torrents       service.TorrentService
	scheduler      *snapshot.Scheduler
	hub            *snapshot.Hub
	paths          service.PathSelector
	auth           service.AuthService
	defaultPrivate bool
	logger         *logrus.Logger
}

type Options struct {
	// DefaultPrivate applies to seed requests that leave "private" unset.
	DefaultPrivate bool
	Logger         *logrus.Logger
}

func NewHandler(torrents service.TorrentService, scheduler *snapshot.Scheduler, hub *snapshot.Hub, paths service.PathSelector, auth service.AuthService, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Handler{
		torrents:       torrents,
		scheduler:      scheduler,
		hub:            hub,
		paths:          paths,
		auth:           auth,
		defaultPrivate: opts.DefaultPrivate,
		logger:         opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/login", h.login)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}

	protected := api.Group("")
	protected.Use(h.authMiddleware())
	{
		protected.GET("/torrents", h.listTorrents)
		protected.GET("/torrents/events", h.streamTorrents)
		protected.POST("/torrents", h.addTorrent)
		protected.GET("/torrents/:id", h.getTorrent)
		protected.GET("/torrents/:id/file", h.getTorrentFile)
		protected.DELETE("/torrents/:id", h.deleteTorrent)
		protected.POST("/torrents/:id/pause-resume", h.togglePause)
		protected.POST("/torrents/:id/pause", h.pause)
		protected.POST("/torrents/:id/resume", h.resume)
		protected.POST("/seed", h.seed)
		protected.GET("/select-path", h.selectPath)
	}
}

type addTorrentRequest struct {
	Source string `json:"source"`
	Path   string `json:"path"`
}

type seedRequest struct {
	Path           string   `json:"path"`
	Name           string   `json:"name"`
	Private        *bool    `json:"private"`
	CustomTrackers []string `json:"customTrackers"`
	Creator        string   `json:"creator"`
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) listTorrents(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Collect())
}

func (h *Handler) streamTorrents(c *gin.Context) {
	updates, cancel := h.hub.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent(eventUpdateTorrentList, h.scheduler.Collect())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case views, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(eventUpdateTorrentList, views)
			return true
		}
	})
}

func (h *Handler) addTorrent(c *gin.Context) {
	var req addTorrentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.torrents.Add(c.Request.Context(), req.Source, req.Path)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if rec == nil {
		c.Status(http.StatusNoContent)
		return
	}
	h.respondView(c, http.StatusCreated, *rec)
}

func (h *Handler) seed(c *gin.Context) {
	var req seedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	private := h.defaultPrivate
	if req.Private != nil {
		private = *req.Private
	}
	rec, err := h.torrents.Seed(c.Request.Context(), req.Path, domain.SeedOptions{
		CreatorLabel:   req.Creator,
		Private:        private,
		CustomTrackers: req.CustomTrackers,
		Name:           req.Name,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if rec == nil {
		c.Status(http.StatusNoContent)
		return
	}
	h.respondView(c, http.StatusCreated, *rec)
}

func (h *Handler) getTorrent(c *gin.Context) {
	view, err := h.torrents.Details(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) getTorrentFile(c *gin.Context) {
	blob, name, err := h.torrents.RecordFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
	c.Data(http.StatusOK, "application/x-bittorrent", blob)
}

func (h *Handler) togglePause(c *gin.Context) {
	h.respondRecord(c)(h.torrents.TogglePause(c.Request.Context(), c.Param("id")))
}

func (h *Handler) pause(c *gin.Context) {
	h.respondRecord(c)(h.torrents.Pause(c.Request.Context(), c.Param("id")))
}

func (h *Handler) resume(c *gin.Context) {
	h.respondRecord(c)(h.torrents.Resume(c.Request.Context(), c.Param("id")))
}

func (h *Handler) deleteTorrent(c *gin.Context) {
	id := c.Param("id")
	if err := h.torrents.Remove(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) selectPath(c *gin.Context) {
	kind, ok := service.ParsePathKind(c.Query("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be file or dir"})
		return
	}
	path, ok := h.paths.SelectPath(kind, c.Query("hint"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"path": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (h *Handler) respondRecord(c *gin.Context) func(*domain.TorrentRecord, error) {
	return func(rec *domain.TorrentRecord, err error) {
		if err != nil {
			h.writeError(c, err)
			return
		}
		h.respondView(c, http.StatusOK, *rec)
	}
}

// respondView writes the record merged with its live stats, as a snapshot would show it.
func (h *Handler) respondView(c *gin.Context, status int, rec domain.TorrentRecord) {
	view, err := h.torrents.Details(c.Request.Context(), rec.InfoHash)
	if err != nil {
		// removed concurrently; the record as of the operation is still the answer
		fallback := domain.NewTorrentView(rec, nil)
		view = &fallback
	}
	c.JSON(status, view)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateIdentity),
		errors.Is(err, domain.ErrOperationInProgress),
		errors.Is(err, domain.ErrMetadataPending):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEngineFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
