package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/reviewledger/internal/ledger"
	"github.com/jmerrifield20/reviewledger/internal/review"
	"go.uber.org/zap"
)

// ReviewHandler handles review submission and listing.
type ReviewHandler struct {
	svc      *review.Service
	sessions *SessionHandler
	logger   *zap.Logger
}

// NewReviewHandler creates a new ReviewHandler. Ledgers are resolved through
// sessions.RequireLedger.
func NewReviewHandler(svc *review.Service, sessions *SessionHandler, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{svc: svc, sessions: sessions, logger: logger}
}

// Register mounts the review routes on the given router group.
func (h *ReviewHandler) Register(rg *gin.RouterGroup) {
	r := rg.Group("/reviews", h.sessions.RequireLedger())
	{
		r.POST("", h.SubmitReview)
		r.POST("/check", h.CheckReview)
		r.GET("", h.ListReviews)
	}
}

// SubmitReview handles POST /reviews — gates the review through the ledger
// and scores it only when accepted.
func (h *ReviewHandler) SubmitReview(c *gin.Context) {
	var sub review.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	l := ledgerFromCtx(c)
	out, err := h.svc.Analyze(c.Request.Context(), l, sessionFromCtx(c), sub)
	if err != nil {
		var valErr *review.ErrValidation
		if errors.As(err, &valErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error()})
			return
		}
		h.logger.Error("analyze review", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "review accepted but scoring failed"})
		return
	}

	if !out.Accepted {
		c.JSON(rejectionStatus(out.Decision), gin.H{
			"accepted": false,
			"decision": out.Decision,
			"message":  rejectionMessage(l.Policy().Name(), out.Decision),
		})
		return
	}
	RecordLedgerAppend()
	c.JSON(http.StatusCreated, out)
}

// CheckReview handles POST /reviews/check — reports what the ledger's policy
// would decide for the submission, without recording it.
func (h *ReviewHandler) CheckReview(c *gin.Context) {
	var sub review.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d := h.svc.Check(ledgerFromCtx(c), sub)
	c.JSON(http.StatusOK, gin.H{
		"duplicate": d == ledger.RejectedDuplicate,
		"decision":  d.String(),
	})
}

// ListReviews handles GET /reviews — lists accepted records in insertion order.
func (h *ReviewHandler) ListReviews(c *gin.Context) {
	records := ledgerFromCtx(c).Accepted()
	c.JSON(http.StatusOK, gin.H{
		"reviews": records,
		"count":   len(records),
	})
}

func rejectionStatus(decision string) int {
	if decision == ledger.RejectedInvalid.String() {
		return http.StatusUnprocessableEntity
	}
	return http.StatusConflict
}

func rejectionMessage(policy, decision string) string {
	switch {
	case decision == ledger.RejectedInvalid.String():
		return "submission has no verifiable identity"
	case policy == ledger.PolicyReviewer:
		return "this reviewer is flagged; review might be fake"
	default:
		return "this review already exists; possible spam"
	}
}
