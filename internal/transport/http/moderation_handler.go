package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// EvidenceOpener reads stored proof images for reviewers.
type EvidenceOpener interface {
	Open(p string) (afero.File, error)
}

type ModerationHandler struct {
	queue    *usecase.ProofQueue
	evidence EvidenceOpener
	logger   *zap.Logger
}

func NewModerationHandler(queue *usecase.ProofQueue, evidence EvidenceOpener, logger *zap.Logger) *ModerationHandler {
	return &ModerationHandler{queue: queue, evidence: evidence, logger: logger}
}

// GET /api/v1/moderation/validations?limit=
func (h *ModerationHandler) ListPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.queue.ListPending(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"validations": list})
}

type reviewReq struct {
	Decision string          `json:"decision" binding:"required"`
	Notes    string          `json:"notes"`
	AIResult json.RawMessage `json:"ai_result"`
}

// POST /api/v1/moderation/validations/:id/review
func (h *ModerationHandler) Review(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	v, err := h.queue.MarkReviewed(c.Request.Context(), id, usecase.ReviewInput{
		Decision: decision,
		Notes:    req.Notes,
		AIResult: req.AIResult,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"validation": v})
}

// GET /api/v1/moderation/evidence/*path
func (h *ModerationHandler) Evidence(c *gin.Context) {
	p := strings.TrimPrefix(c.Param("path"), "/")
	f, err := h.evidence.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "evidence not found", "code": "EVIDENCE_NOT_FOUND"})
			return
		}
		badRequest(c, "invalid evidence path")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "evidence not found", "code": "EVIDENCE_NOT_FOUND"})
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	http.ServeContent(c.Writer, c.Request, path.Base(p), info.ModTime(), f)
}
