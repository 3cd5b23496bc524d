package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/database"
	"github.com/swapfolio/swapfolio-go/internal/middleware"
	"github.com/swapfolio/swapfolio-go/internal/models"
	"github.com/swapfolio/swapfolio-go/internal/services"
)

type SubscriptionsHandler struct {
	subscriptions *database.SubscriptionRepository
	notifier      *services.NotificationTrigger
	logger        *logrus.Logger
}

func NewSubscriptionsHandler(subscriptions *database.SubscriptionRepository, notifier *services.NotificationTrigger, logger *logrus.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{
		subscriptions: subscriptions,
		notifier:      notifier,
		logger:        logger,
	}
}

// GetSubscription returns the authenticated wallet's notification settings.
func (h *SubscriptionsHandler) GetSubscription(c *gin.Context) {
	wallet, ok := middleware.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	sub, err := h.subscriptions.GetByWallet(c.Request.Context(), wallet)
	if err != nil {
		h.logger.WithError(err).WithField("wallet", wallet).Error("Failed to load subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription for this wallet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// UpdateSubscription saves the user-tunable notification settings.
func (h *SubscriptionsHandler) UpdateSubscription(c *gin.Context) {
	wallet, ok := middleware.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req models.SubscriptionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.subscriptions.UpdateSettings(c.Request.Context(), wallet, &req)
	if err != nil {
		h.logger.WithError(err).WithField("wallet", wallet).Error("Failed to update subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetEnabled flips the master notification switch without touching the
// other settings.
func (h *SubscriptionsHandler) SetEnabled(c *gin.Context) {
	wallet, ok := middleware.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: enabled is required"})
		return
	}

	if err := h.subscriptions.SetEnabled(c.Request.Context(), wallet, *req.Enabled); err != nil {
		if errors.Is(err, database.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No subscription for this wallet"})
			return
		}
		h.logger.WithError(err).WithField("wallet", wallet).Error("Failed to toggle subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

// TestNotification formats a sample alert for the wallet so users can
// verify their channel is linked before a real signal fires.
func (h *SubscriptionsHandler) TestNotification(c *gin.Context) {
	wallet, ok := middleware.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	preview, err := h.notifier.TestNotification(c.Request.Context(), wallet)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"preview": preview})
}
