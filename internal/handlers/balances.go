package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
)

type balanceItem struct {
	Asset     string `json:"asset"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
	UpdatedAt string `json:"updated_at"`
}

type addressItem struct {
	Network string `json:"network"`
	Address string `json:"address"`
}

func (h *Handler) ListBalances(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	balances, err := h.Ledger.ListBalances(c.Request.Context(), userID)
	if err != nil {
		h.Logger.Error("list balances failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	items := make([]balanceItem, 0, len(balances))
	for _, balance := range balances {
		items = append(items, balanceItem{
			Asset:     balance.Asset,
			Available: balance.Available.String(),
			Locked:    balance.Locked.String(),
			UpdatedAt: balance.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"balances": items})
}

// AllocateAddresses claims the full deposit-address set for the user. The
// external signup flow calls this before committing the user record; a 409
// tells it to abort the signup.
func (h *Handler) AllocateAddresses(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	addresses, err := h.Allocator.Allocate(c.Request.Context(), userID)
	if err != nil {
		var exhausted *storage.PoolExhaustedError
		if errors.As(err, &exhausted) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "POOL_EXHAUSTED",
				"message": "no deposit address available",
				"network": exhausted.Network,
			})
			return
		}
		h.Logger.Error("allocate addresses failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"addresses": addressItems(addresses)})
}

func (h *Handler) ListAddresses(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	addresses, err := h.Allocator.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.Logger.Error("list addresses failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": addressItems(addresses)})
}

func addressItems(addresses []storage.PoolAddress) []addressItem {
	items := make([]addressItem, 0, len(addresses))
	for _, addr := range addresses {
		items = append(items, addressItem{Network: addr.Network, Address: addr.Address})
	}
	return items
}
