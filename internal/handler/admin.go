package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/reviewledger/internal/session"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ArchiveCounter is the part of archive.Archive the admin view needs.
type ArchiveCounter interface {
	Count(ctx context.Context) (int, error)
}

// AdminHandler exposes operator endpoints guarded by a bcrypt-hashed secret.
// With an empty hash every admin route answers 404.
type AdminHandler struct {
	store      *session.Store
	archive    ArchiveCounter // nil = no archive configured
	secretHash []byte
	logger     *zap.Logger
}

// NewAdminHandler creates a new AdminHandler. secretHash is a bcrypt hash of
// the admin secret.
func NewAdminHandler(store *session.Store, archive ArchiveCounter, secretHash string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{store: store, archive: archive, secretHash: []byte(secretHash), logger: logger}
}

// Register mounts the admin routes on the given router group.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/admin", h.requireAdmin())
	{
		a.GET("/sessions", h.Sessions)
		a.POST("/sessions/evict", h.EvictSessions)
	}
}

func (h *AdminHandler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(h.secretHash) == 0 {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		secret := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if secret == "" || bcrypt.CompareHashAndPassword(h.secretHash, []byte(secret)) != nil {
			h.logger.Warn("admin auth failed", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
			return
		}
		c.Next()
	}
}

// Sessions handles GET /admin/sessions — reports session and archive counts.
func (h *AdminHandler) Sessions(c *gin.Context) {
	resp := gin.H{
		"sessions": h.store.Len(),
		"policy":   h.store.Policy().Name(),
	}
	if h.archive != nil {
		n, err := h.archive.Count(c.Request.Context())
		if err != nil {
			h.logger.Error("archive count", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query archive"})
			return
		}
		resp["archived_records"] = n
	}
	c.JSON(http.StatusOK, resp)
}

// EvictSessions handles POST /admin/sessions/evict — drops idle sessions now.
func (h *AdminHandler) EvictSessions(c *gin.Context) {
	n := h.store.Evict()
	SetActiveSessions(float64(h.store.Len()))
	c.JSON(http.StatusOK, gin.H{"evicted": n})
}
