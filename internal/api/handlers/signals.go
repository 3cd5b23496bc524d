package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/middleware"
	"github.com/swapfolio/swapfolio-go/internal/models"
	"github.com/swapfolio/swapfolio-go/internal/services"
	"github.com/swapfolio/swapfolio-go/internal/utils"
)

type SignalsHandler struct {
	evaluator *services.SignalEvaluator
	logger    *logrus.Logger
}

func NewSignalsHandler(evaluator *services.SignalEvaluator, logger *logrus.Logger) *SignalsHandler {
	return &SignalsHandler{
		evaluator: evaluator,
		logger:    logger,
	}
}

type evaluateSignalRequest struct {
	ChainID      int    `json:"chain_id" binding:"required"`
	TokenAddress string `json:"token_address" binding:"required"`
	SignalType   string `json:"signal_type"`
}

// EvaluateSignal runs the full pipeline for the authenticated wallet. An
// empty signal_type evaluates both signal types in one call.
func (h *SignalsHandler) EvaluateSignal(c *gin.Context) {
	wallet, ok := middleware.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req evaluateSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	var (
		results []services.EvaluationResult
		err     error
	)
	if req.SignalType == "" {
		results, err = h.evaluator.EvaluateToken(c.Request.Context(), wallet, req.ChainID, req.TokenAddress)
	} else {
		var result services.EvaluationResult
		result, err = h.evaluator.EvaluateSignal(c.Request.Context(), wallet, req.ChainID, req.TokenAddress, models.SignalType(req.SignalType))
		results = []services.EvaluationResult{result}
	}
	if err != nil {
		if utils.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).WithFields(logrus.Fields{
			"wallet":   wallet,
			"chain_id": req.ChainID,
			"token":    req.TokenAddress,
		}).Error("Signal evaluation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate signal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// GetSignal is the public read-only view: it observes and scores without
// touching dedup, cooldown, or notification state.
func (h *SignalsHandler) GetSignal(c *gin.Context) {
	chainID, tokenAddress, ok := h.pathTarget(c)
	if !ok {
		return
	}

	types, ok := h.queryTypes(c)
	if !ok {
		return
	}

	observations := make([]models.SignalObservation, 0, len(types))
	for _, signalType := range types {
		obs, err := h.evaluator.Observe(c.Request.Context(), chainID, tokenAddress, signalType)
		if err != nil {
			if utils.IsValidation(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			h.logger.WithError(err).WithFields(logrus.Fields{
				"chain_id": chainID,
				"token":    tokenAddress,
			}).Error("Signal observation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to observe signal"})
			return
		}
		observations = append(observations, obs)
	}

	c.JSON(http.StatusOK, gin.H{"observations": observations})
}

// SignalStatus exposes the suppression state for a token so operators can
// answer "why did nobody get notified" without reading Redis by hand.
func (h *SignalsHandler) SignalStatus(c *gin.Context) {
	chainID, tokenAddress, ok := h.pathTarget(c)
	if !ok {
		return
	}

	types, ok := h.queryTypes(c)
	if !ok {
		return
	}

	states := make([]services.SignalDebugState, 0, len(types))
	for _, signalType := range types {
		state, err := h.evaluator.DebugState(chainID, tokenAddress, signalType)
		if err != nil {
			if utils.IsValidation(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read signal state"})
			return
		}
		states = append(states, state)
	}

	c.JSON(http.StatusOK, gin.H{"states": states})
}

func (h *SignalsHandler) pathTarget(c *gin.Context) (int, string, bool) {
	chainID, err := strconv.Atoi(c.Param("chain"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chain id: " + c.Param("chain")})
		return 0, "", false
	}
	return chainID, c.Param("token"), true
}

func (h *SignalsHandler) queryTypes(c *gin.Context) ([]models.SignalType, bool) {
	raw := c.Query("type")
	if raw == "" {
		return []models.SignalType{models.SignalTypeRisk, models.SignalTypeLiquidity}, true
	}
	signalType := models.SignalType(raw)
	if !signalType.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown signal type: " + raw})
		return nil, false
	}
	return []models.SignalType{signalType}, true
}
