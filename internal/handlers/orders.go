package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/orders"
	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
)

type placeOrderRequest struct {
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	Price      string `json:"price"`
	BaseAmount string `json:"base_amount"`
}

type orderItem struct {
	OrderID      string `json:"order_id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Price        string `json:"price"`
	BaseAmount   string `json:"base_amount"`
	LockedAsset  string `json:"locked_asset"`
	LockedAmount string `json:"locked_amount"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type tradeItem struct {
	TradeID    string `json:"trade_id"`
	OrderID    string `json:"order_id"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	Price      string `json:"price"`
	BaseAmount string `json:"base_amount"`
	FeeAsset   string `json:"fee_asset"`
	FeeAmount  string `json:"fee_amount"`
	ExecutedAt string `json:"executed_at"`
}

func (h *Handler) PlaceOrder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.BaseAmount))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid base_amount")
		return
	}

	input := orders.PlaceOrderRequest{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		BaseAmount: amount,
	}

	orderType := strings.ToLower(strings.TrimSpace(req.Type))
	if orderType == storage.OrderTypeMarket {
		order, trade, err := h.Orders.PlaceMarketOrder(c.Request.Context(), userID, input)
		if err != nil {
			h.writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"order": orderToItem(*order),
			"trade": tradeToItem(*trade),
		})
		return
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid price")
		return
	}
	input.Price = price

	order, err := h.Orders.PlaceLimitOrder(c.Request.Context(), userID, input)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderToItem(*order))
}

func (h *Handler) GetOrder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	orderID, err := parseUUIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid order id")
		return
	}

	order, err := h.Orders.GetOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
			return
		}
		h.Logger.Error("get order failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	c.JSON(http.StatusOK, orderToItem(*order))
}

func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	filter := storage.OrderFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Status: strings.ToLower(strings.TrimSpace(c.Query("status"))),
	}
	if limitStr := strings.TrimSpace(c.Query("limit")); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit")
			return
		}
		filter.Limit = n
	}

	list, err := h.Orders.ListOrders(c.Request.Context(), userID, filter)
	if err != nil {
		h.Logger.Error("list orders failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	items := make([]orderItem, 0, len(list))
	for _, order := range list {
		items = append(items, orderToItem(order))
	}
	c.JSON(http.StatusOK, gin.H{"orders": items})
}

func (h *Handler) CancelOrder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	orderID, err := parseUUIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid order id")
		return
	}

	order, err := h.Orders.Cancel(c.Request.Context(), userID, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
			return
		}
		if errors.Is(err, orders.ErrOrderNotCancellable) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "ORDER_NOT_CANCELLABLE",
				"message": "order already reached a terminal status",
				"order":   orderToItem(*order),
			})
			return
		}
		h.Logger.Error("cancel order failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	c.JSON(http.StatusOK, orderToItem(*order))
}

func (h *Handler) CancelAllOrders(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	cancelled, err := h.Orders.CancelAll(c.Request.Context(), userID, symbol)
	if err != nil {
		h.Logger.Error("cancel all failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

func (h *Handler) ListTrades(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	limit := 0
	if limitStr := strings.TrimSpace(c.Query("limit")); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit")
			return
		}
		limit = n
	}

	trades, err := h.Orders.ListTrades(c.Request.Context(), userID, symbol, limit)
	if err != nil {
		h.Logger.Error("list trades failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	items := make([]tradeItem, 0, len(trades))
	for _, trade := range trades {
		items = append(items, tradeToItem(trade))
	}
	c.JSON(http.StatusOK, gin.H{"trades": items})
}

func (h *Handler) writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds):
		writeError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "insufficient available balance")
	case errors.Is(err, orders.ErrUnknownMarket):
		writeError(c, http.StatusBadRequest, "UNKNOWN_MARKET", "unknown market")
	case errors.Is(err, orders.ErrMarketHalted):
		writeError(c, http.StatusBadRequest, "MARKET_HALTED", "market halted")
	case errors.Is(err, orders.ErrOracleRequired):
		writeError(c, http.StatusServiceUnavailable, "ORACLE_UNAVAILABLE", "no reference price available")
	case errors.Is(err, orders.ErrInvalidSide),
		errors.Is(err, orders.ErrInvalidPrice),
		errors.Is(err, orders.ErrInvalidAmount),
		errors.Is(err, orders.ErrWrongQuoteAsset):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		h.Logger.Error("place order failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func orderToItem(order storage.Order) orderItem {
	return orderItem{
		OrderID:      order.ID.String(),
		Symbol:       order.Symbol,
		Side:         order.Side,
		Type:         order.Type,
		Price:        order.Price.String(),
		BaseAmount:   order.BaseAmount.String(),
		LockedAsset:  order.LockedAsset,
		LockedAmount: order.LockedAmount.String(),
		Status:       order.Status,
		CreatedAt:    order.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    order.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func tradeToItem(trade storage.Trade) tradeItem {
	return tradeItem{
		TradeID:    trade.ID.String(),
		OrderID:    trade.OrderID.String(),
		Symbol:     trade.Symbol,
		Side:       trade.Side,
		Type:       trade.Type,
		Price:      trade.Price.String(),
		BaseAmount: trade.BaseAmount.String(),
		FeeAsset:   trade.FeeAsset,
		FeeAmount:  trade.FeeAmount.String(),
		ExecutedAt: trade.ExecutedAt.UTC().Format(time.RFC3339),
	}
}
