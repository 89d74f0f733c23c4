package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/orders"
	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
	"github.com/juhanncheong/wallet-backend-sub000/libs/auth"
)

type OrderService interface {
	PlaceLimitOrder(ctx context.Context, userID uuid.UUID, req orders.PlaceOrderRequest) (*storage.Order, error)
	PlaceMarketOrder(ctx context.Context, userID uuid.UUID, req orders.PlaceOrderRequest) (*storage.Order, *storage.Trade, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*storage.Order, error)
	CancelAll(ctx context.Context, userID uuid.UUID, symbol string) (int, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*storage.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, filter storage.OrderFilter) ([]storage.Order, error)
	ListTrades(ctx context.Context, userID uuid.UUID, symbol string, limit int) ([]storage.Trade, error)
}

type LedgerService interface {
	ListBalances(ctx context.Context, userID uuid.UUID) ([]storage.Balance, error)
}

type AddressAllocator interface {
	Allocate(ctx context.Context, userID uuid.UUID) ([]storage.PoolAddress, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]storage.PoolAddress, error)
}

type RewardService interface {
	CreateGrant(ctx context.Context, userID uuid.UUID, asset string, amount decimal.Decimal) (*storage.RewardGrant, error)
	Activate(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error)
	CancelGrant(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error)
	Redeem(ctx context.Context, grantID, userID uuid.UUID) (*storage.RewardGrant, error)
	GetGrant(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error)
}

type OverrideStore interface {
	UpsertOverride(ctx context.Context, o storage.PriceOverride) error
	DeactivateOverride(ctx context.Context, symbol string) error
	GetOverride(ctx context.Context, symbol string) (*storage.PriceOverride, error)
}

type Handler struct {
	Orders    OrderService
	Ledger    LedgerService
	Allocator AddressAllocator
	Rewards   RewardService
	Overrides OverrideStore
	Logger    *slog.Logger
}

func New(orders OrderService, ledger LedgerService, allocator AddressAllocator, rewards RewardService, overrides OverrideStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Orders:    orders,
		Ledger:    ledger,
		Allocator: allocator,
		Rewards:   rewards,
		Overrides: overrides,
		Logger:    logger,
	}
}

func (h *Handler) Register(r *gin.Engine, jwtSecret []byte, internalToken string) {
	user := r.Group("/", auth.Middleware(jwtSecret))
	user.POST("/orders", h.PlaceOrder)
	user.GET("/orders", h.ListOrders)
	user.GET("/orders/:id", h.GetOrder)
	user.DELETE("/orders/:id", h.CancelOrder)
	user.DELETE("/orders", h.CancelAllOrders)
	user.GET("/balances", h.ListBalances)
	user.GET("/trades", h.ListTrades)
	user.POST("/signup-addresses", h.AllocateAddresses)
	user.GET("/deposit-addresses", h.ListAddresses)
	user.POST("/rewards/:id/redeem", h.RedeemGrant)
	user.GET("/rewards/:id", h.GetGrant)

	internal := r.Group("/internal", auth.InternalMiddleware(internalToken))
	internal.POST("/rewards", h.CreateGrant)
	internal.POST("/rewards/:id/activate", h.ActivateGrant)
	internal.POST("/rewards/:id/cancel", h.CancelGrant)
	internal.PUT("/overrides/:symbol", h.PutOverride)
	internal.DELETE("/overrides/:symbol", h.DeleteOverride)
	internal.GET("/overrides/:symbol", h.GetOverrideConfig)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}

func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(auth.ContextUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := val.(string)
	if !ok {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

func parseUUIDParam(value string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return uuid.Nil, errors.New("missing id")
	}
	return uuid.Parse(trimmed)
}

func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
	}
	return userID, ok
}
