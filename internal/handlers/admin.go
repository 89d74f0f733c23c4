package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/rewards"
	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
)

type createGrantRequest struct {
	UserID string `json:"user_id"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type grantItem struct {
	GrantID   string `json:"grant_id"`
	UserID    string `json:"user_id"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type overrideRequest struct {
	Active            bool    `json:"active"`
	ExpiresAt         string  `json:"expires_at"`
	LastPrice         string  `json:"last_price"`
	StepSize          string  `json:"step_size"`
	FlipProbability   float64 `json:"flip_probability"`
	ReversionTarget   string  `json:"reversion_target"`
	ReversionStrength float64 `json:"reversion_strength"`
	ShockProbability  float64 `json:"shock_probability"`
	ShockMultiplier   string  `json:"shock_multiplier"`
}

func (h *Handler) CreateGrant(c *gin.Context) {
	var req createGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid user_id")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid amount")
		return
	}

	grant, err := h.Rewards.CreateGrant(c.Request.Context(), userID, strings.ToUpper(strings.TrimSpace(req.Asset)), amount)
	if err != nil {
		if errors.Is(err, rewards.ErrInvalidGrant) {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		h.Logger.Error("create grant failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	c.JSON(http.StatusCreated, grantToItem(*grant))
}

func (h *Handler) ActivateGrant(c *gin.Context) {
	h.transitionGrant(c, h.Rewards.Activate)
}

func (h *Handler) CancelGrant(c *gin.Context) {
	h.transitionGrant(c, h.Rewards.CancelGrant)
}

func (h *Handler) transitionGrant(c *gin.Context, transition func(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error)) {
	grantID, err := parseUUIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid grant id")
		return
	}

	grant, err := transition(c.Request.Context(), grantID)
	if err != nil {
		if errors.Is(err, storage.ErrConcurrentTransition) {
			writeError(c, http.StatusConflict, "INVALID_TRANSITION", "grant not in a transitionable status")
			return
		}
		h.Logger.Error("grant transition failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	c.JSON(http.StatusOK, grantToItem(*grant))
}

func (h *Handler) RedeemGrant(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	grantID, err := parseUUIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid grant id")
		return
	}

	grant, err := h.Rewards.Redeem(c.Request.Context(), grantID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrConcurrentTransition) {
			writeError(c, http.StatusConflict, "INVALID_TRANSITION", "grant not redeemable")
			return
		}
		h.Logger.Error("redeem grant failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	c.JSON(http.StatusOK, grantToItem(*grant))
}

func (h *Handler) GetGrant(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	grantID, err := parseUUIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid grant id")
		return
	}

	grant, err := h.Rewards.GetGrant(c.Request.Context(), grantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(c, http.StatusNotFound, "GRANT_NOT_FOUND", "grant not found")
			return
		}
		h.Logger.Error("get grant failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	if grant.UserID != userID {
		writeError(c, http.StatusNotFound, "GRANT_NOT_FOUND", "grant not found")
		return
	}
	c.JSON(http.StatusOK, grantToItem(*grant))
}

func (h *Handler) PutOverride(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "missing symbol")
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	override, err := overrideFromRequest(symbol, req)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := h.Overrides.UpsertOverride(c.Request.Context(), override); err != nil {
		h.Logger.Error("upsert override failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "active": override.Active})
}

func (h *Handler) DeleteOverride(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	if err := h.Overrides.DeactivateOverride(c.Request.Context(), symbol); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(c, http.StatusNotFound, "OVERRIDE_NOT_FOUND", "override not found")
			return
		}
		h.Logger.Error("deactivate override failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "active": false})
}

func (h *Handler) GetOverrideConfig(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	override, err := h.Overrides.GetOverride(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(c, http.StatusNotFound, "OVERRIDE_NOT_FOUND", "override not found")
			return
		}
		h.Logger.Error("get override failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":             override.Symbol,
		"active":             override.Active,
		"expires_at":         override.ExpiresAt.UTC().Format(time.RFC3339),
		"last_price":         override.LastPrice.String(),
		"step_size":          override.StepSize.String(),
		"flip_probability":   override.FlipProbability,
		"reversion_target":   override.ReversionTarget.String(),
		"reversion_strength": override.ReversionStrength,
		"shock_probability":  override.ShockProbability,
		"shock_multiplier":   override.ShockMultiplier.String(),
	})
}

func overrideFromRequest(symbol string, req overrideRequest) (storage.PriceOverride, error) {
	expiresAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ExpiresAt))
	if err != nil {
		return storage.PriceOverride{}, errors.New("invalid expires_at")
	}
	lastPrice, err := decimal.NewFromString(strings.TrimSpace(req.LastPrice))
	if err != nil || !lastPrice.IsPositive() {
		return storage.PriceOverride{}, errors.New("invalid last_price")
	}

	override := storage.PriceOverride{
		Symbol:            symbol,
		Active:            req.Active,
		ExpiresAt:         expiresAt,
		LastPrice:         lastPrice,
		StepSize:          decimal.Zero,
		FlipProbability:   req.FlipProbability,
		ReversionTarget:   decimal.Zero,
		ReversionStrength: req.ReversionStrength,
		ShockProbability:  req.ShockProbability,
		ShockMultiplier:   decimal.NewFromInt(1),
	}
	if strings.TrimSpace(req.StepSize) != "" {
		if override.StepSize, err = decimal.NewFromString(strings.TrimSpace(req.StepSize)); err != nil {
			return storage.PriceOverride{}, errors.New("invalid step_size")
		}
	}
	if strings.TrimSpace(req.ReversionTarget) != "" {
		if override.ReversionTarget, err = decimal.NewFromString(strings.TrimSpace(req.ReversionTarget)); err != nil {
			return storage.PriceOverride{}, errors.New("invalid reversion_target")
		}
	}
	if strings.TrimSpace(req.ShockMultiplier) != "" {
		if override.ShockMultiplier, err = decimal.NewFromString(strings.TrimSpace(req.ShockMultiplier)); err != nil {
			return storage.PriceOverride{}, errors.New("invalid shock_multiplier")
		}
	}
	return override, nil
}

func grantToItem(grant storage.RewardGrant) grantItem {
	return grantItem{
		GrantID:   grant.ID.String(),
		UserID:    grant.UserID.String(),
		Asset:     grant.Asset,
		Amount:    grant.Amount.String(),
		Status:    grant.Status,
		CreatedAt: grant.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: grant.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
