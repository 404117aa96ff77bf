package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/reviewledger/internal/ledger"
	"github.com/jmerrifield20/reviewledger/internal/session"
	"go.uber.org/zap"
)

const (
	ctxLedger    = "reviewledger_ledger"
	ctxSessionID = "reviewledger_session_id"
)

// SessionHandler issues session tokens and resolves the ledger each request
// operates on.
type SessionHandler struct {
	store     *session.Store
	tokens    *session.TokenIssuer
	retention session.Retention
	logger    *zap.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(store *session.Store, tokens *session.TokenIssuer, retention session.Retention, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{store: store, tokens: tokens, retention: retention, logger: logger}
}

// Register mounts the session routes on the given router group.
func (h *SessionHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/sessions")
	{
		s.POST("", h.CreateSession)
		s.DELETE("/current", h.RequireLedger(), h.EndSession)
	}
}

// CreateSession handles POST /sessions — starts a session with a fresh ledger.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	if h.retention == session.RetentionRequest {
		c.JSON(http.StatusConflict, gin.H{"error": "sessions are disabled: ledgers are request-scoped"})
		return
	}

	id := h.store.Create()
	token, exp, err := h.tokens.Issue(id)
	if err != nil {
		h.logger.Error("issue session token", zap.Error(err))
		_ = h.store.End(id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	SetActiveSessions(float64(h.store.Len()))

	c.JSON(http.StatusCreated, gin.H{
		"session_id": id.String(),
		"token":      token,
		"expires_at": exp,
		"policy":     h.store.Policy().Name(),
	})
}

// EndSession handles DELETE /sessions/current — discards the caller's ledger.
func (h *SessionHandler) EndSession(c *gin.Context) {
	id := sessionFromCtx(c)
	if id == uuid.Nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no session to end"})
		return
	}
	if err := h.store.End(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	SetActiveSessions(float64(h.store.Len()))
	c.Status(http.StatusNoContent)
}

// RequireLedger returns a middleware that attaches the ledger for this
// request. With request retention every request gets a fresh ledger; with
// session retention a valid session token is required.
func (h *SessionHandler) RequireLedger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.retention == session.RetentionRequest {
			c.Set(ctxLedger, h.store.NewLedger())
			c.Set(ctxSessionID, uuid.Nil)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session token required"})
			return
		}
		id, err := h.tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}
		l, err := h.store.Ledger(id)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired or ended"})
				return
			}
			h.logger.Error("resolve session ledger", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve session"})
			return
		}

		c.Set(ctxLedger, l)
		c.Set(ctxSessionID, id)
		c.Next()
	}
}

func ledgerFromCtx(c *gin.Context) *ledger.Ledger {
	v, ok := c.Get(ctxLedger)
	if !ok {
		return nil
	}
	l, _ := v.(*ledger.Ledger)
	return l
}

func sessionFromCtx(c *gin.Context) uuid.UUID {
	v, ok := c.Get(ctxSessionID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}
