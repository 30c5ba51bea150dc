package handlers

import (
	"net/http"

	"habitquest/internal/application/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RevivalHandler struct {
	revival *usecase.RevivalEngine
	logger  *zap.Logger
}

func NewRevivalHandler(revival *usecase.RevivalEngine, logger *zap.Logger) *RevivalHandler {
	return &RevivalHandler{revival: revival, logger: logger}
}

// GET /api/v1/revival/status
func (h *RevivalHandler) Status(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	st, err := h.revival.Status(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GET /api/v1/revival/options
func (h *RevivalHandler) Options(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	opts, err := h.revival.Options(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": opts})
}

// POST /api/v1/revival/reset
func (h *RevivalHandler) Reset(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	entry, err := h.revival.Reset(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledger_entry": entry, "lives": entry.ResultingLives})
}

// POST /api/v1/revival/challenge
func (h *RevivalHandler) Challenge(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req redeemChallengeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	entry, err := h.revival.ChallengeRevival(c.Request.Context(), userID, uuid.MustParse(req.ChallengeID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledger_entry": entry, "lives": entry.ResultingLives})
}

type LifeChallengeHandler struct {
	service *usecase.LifeChallengeService
	logger  *zap.Logger
}

func NewLifeChallengeHandler(service *usecase.LifeChallengeService, logger *zap.Logger) *LifeChallengeHandler {
	return &LifeChallengeHandler{service: service, logger: logger}
}

// GET /api/v1/life-challenges
func (h *LifeChallengeHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"life_challenges": list})
}

// POST /api/v1/life-challenges/:id/claim
func (h *LifeChallengeHandler) Claim(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	entry, err := h.service.Claim(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledger_entry": entry, "lives": entry.ResultingLives})
}
