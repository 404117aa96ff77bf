package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/reviewledger/internal/ledger"
	"go.uber.org/zap"
)

// LedgerHandler exposes read-only HTTP endpoints for the caller's ledger.
type LedgerHandler struct {
	sessions *SessionHandler
	logger   *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(sessions *SessionHandler, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{sessions: sessions, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger", h.sessions.RequireLedger())
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/records/:seq", h.GetRecord)
	}
}

// Overview handles GET /ledger — returns the chain length, root seal and policy.
func (h *LedgerHandler) Overview(c *gin.Context) {
	l := ledgerFromCtx(c)
	c.JSON(http.StatusOK, gin.H{
		"records": l.Len(),
		"root":    l.Root(),
		"policy":  l.Policy().Name(),
	})
}

// Verify handles GET /ledger/verify — walks the full chain and reports integrity.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := ledgerFromCtx(c).Verify(); err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetRecord handles GET /ledger/records/:seq — returns a single record.
func (h *LedgerHandler) GetRecord(c *gin.Context) {
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil || seq < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be a non-negative integer"})
		return
	}

	rec, err := ledgerFromCtx(c).Get(seq)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read record"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
