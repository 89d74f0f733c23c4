package orders

import (
	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
)

// BuildSettlementPlan computes the balance movements for filling an order at
// the given execution price. The fee comes out of the acquired asset: a buy
// pays it in base, a sell pays it in quote.
func BuildSettlementPlan(order storage.Order, price decimal.Decimal) storage.SettlementPlan {
	grossQuote := price.Mul(order.BaseAmount)

	plan := storage.SettlementPlan{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Type:       order.Type,
		Price:      price,
		BaseAmount: order.BaseAmount,
		GrossBase:  order.BaseAmount,
		GrossQuote: grossQuote,
	}

	switch order.Side {
	case storage.OrderSideBuy:
		fee := order.BaseAmount.Mul(order.FeeRate)
		plan.SpendAsset = order.QuoteAsset
		plan.SpendAmount = grossQuote
		plan.FeeAsset = order.BaseAsset
		plan.FeeAmount = fee
		plan.NetBase = order.BaseAmount.Sub(fee)
		plan.NetQuote = grossQuote
		plan.CreditAsset = order.BaseAsset
		plan.CreditAmount = plan.NetBase
	case storage.OrderSideSell:
		fee := grossQuote.Mul(order.FeeRate)
		plan.SpendAsset = order.BaseAsset
		plan.SpendAmount = order.BaseAmount
		plan.FeeAsset = order.QuoteAsset
		plan.FeeAmount = fee
		plan.NetBase = order.BaseAmount
		plan.NetQuote = grossQuote.Sub(fee)
		plan.CreditAsset = order.QuoteAsset
		plan.CreditAmount = plan.NetQuote
	}
	return plan
}
