package handlers

import (
	"net/http"

	"habitquest/internal/application/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// two 5 MB images in base64 plus JSON framing
const maxProofBody = 16 << 20

type RedemptionHandler struct {
	engine *usecase.RedemptionEngine
	logger *zap.Logger
}

func NewRedemptionHandler(engine *usecase.RedemptionEngine, logger *zap.Logger) *RedemptionHandler {
	return &RedemptionHandler{engine: engine, logger: logger}
}

// GET /api/v1/pending-redemptions
func (h *RedemptionHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.engine.ListActive(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": list})
}

// POST /api/v1/pending-redemptions/:id/redeem-life
func (h *RedemptionHandler) RedeemLife(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, entry, err := h.engine.ResolveWithLife(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"redemption":   rec,
		"ledger_entry": entry,
		"lives":        entry.ResultingLives,
	})
}

type redeemChallengeReq struct {
	ChallengeID string `json:"challenge_id" binding:"required,uuid"`
}

// POST /api/v1/pending-redemptions/:id/redeem-challenge
func (h *RedemptionHandler) RedeemChallenge(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req redeemChallengeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := h.engine.AssignChallenge(c.Request.Context(), userID, id, uuid.MustParse(req.ChallengeID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemption": rec})
}

type completeChallengeReq struct {
	ProofText      string   `json:"proof_text"`
	ProofImageURLs []string `json:"proof_image_urls" binding:"required"`
}

// POST /api/v1/pending-redemptions/:id/complete-challenge
func (h *RedemptionHandler) CompleteChallenge(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxProofBody)
	var req completeChallengeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := h.engine.SubmitProof(c.Request.Context(), userID, id, usecase.SubmitProofInput{
		Text:   req.ProofText,
		Images: req.ProofImageURLs,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"validation": v})
}

// GET /api/v1/pending-redemptions/:id/validation-status
func (h *RedemptionHandler) ValidationStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.engine.ValidationStatus(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
