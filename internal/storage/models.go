package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusOpen      = "open"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"

	OrderSideBuy  = "buy"
	OrderSideSell = "sell"

	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"

	AddressStatusAvailable = "available"
	AddressStatusAssigned  = "assigned"
	AddressStatusDisabled  = "disabled"

	GrantStatusDraft     = "draft"
	GrantStatusActive    = "active"
	GrantStatusRedeemed  = "redeemed"
	GrantStatusCancelled = "cancelled"

	MarketStatusActive = "active"
	MarketStatusHalted = "halted"
)

type Balance struct {
	UserID    uuid.UUID
	Asset     string
	Available decimal.Decimal
	Locked    decimal.Decimal
	UpdatedAt time.Time
}

type Order struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	Side         string
	Type         string
	Price        decimal.Decimal
	BaseAmount   decimal.Decimal
	FeeRate      decimal.Decimal
	LockedAsset  string
	LockedAmount decimal.Decimal
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Trade struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	UserID     uuid.UUID
	Symbol     string
	Side       string
	Type       string
	Price      decimal.Decimal
	BaseAmount decimal.Decimal
	FeeAsset   string
	FeeAmount  decimal.Decimal
	GrossBase  decimal.Decimal
	NetBase    decimal.Decimal
	GrossQuote decimal.Decimal
	NetQuote   decimal.Decimal
	ExecutedAt time.Time
}

type PoolAddress struct {
	ID         uuid.UUID
	Network    string
	Address    string
	Status     string
	AssignedTo *uuid.UUID
	AssignedAt *time.Time
	CreatedAt  time.Time
}

type Market struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	FeeRate    decimal.Decimal
	Status     string
}

type PriceOverride struct {
	Symbol            string
	Active            bool
	ExpiresAt         time.Time
	LastPrice         decimal.Decimal
	StepSize          decimal.Decimal
	FlipProbability   float64
	ReversionTarget   decimal.Decimal
	ReversionStrength float64
	ShockProbability  float64
	ShockMultiplier   decimal.Decimal
	UpdatedAt         time.Time
}

type RewardGrant struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    decimal.Decimal
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettlementPlan describes the balance movements for one fill. The engine
// computes it; SettleOrder executes it atomically.
type SettlementPlan struct {
	OrderID      uuid.UUID
	UserID       uuid.UUID
	Symbol       string
	Side         string
	Type         string
	Price        decimal.Decimal
	BaseAmount   decimal.Decimal
	SpendAsset   string
	SpendAmount  decimal.Decimal
	CreditAsset  string
	CreditAmount decimal.Decimal
	FeeAsset     string
	FeeAmount    decimal.Decimal
	GrossBase    decimal.Decimal
	NetBase      decimal.Decimal
	GrossQuote   decimal.Decimal
	NetQuote     decimal.Decimal
}

// LockDiscrepancy reports a (user, asset) whose locked balance does not match
// the sum of locked amounts across that user's open orders.
type LockDiscrepancy struct {
	UserID     uuid.UUID
	Asset      string
	Locked     decimal.Decimal
	OrderLocks decimal.Decimal
}
