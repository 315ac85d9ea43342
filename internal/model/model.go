// Package model defines the records shared between the engine, the store and
// the HTTP API. Amounts are rendered as shopspring/decimal with 18 fractional
// digits; the engine itself works on fixed-point integers.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationKind names a committed state transition.
type OperationKind string

const (
	KindDeposit        OperationKind = "deposit"
	KindMint           OperationKind = "mint"
	KindDepositAndMint OperationKind = "deposit_and_mint"
	KindRedeem         OperationKind = "redeem"
	KindBurn           OperationKind = "burn"
	KindRedeemForBurn  OperationKind = "redeem_for_burn"
	KindLiquidate      OperationKind = "liquidate"
)

// Book identifies which ledger a BookRow belongs to.
type Book string

const (
	BookCollateral Book = "collateral"
	BookDebt       Book = "debt"
)

// Operation is an immutable record of a committed engine operation.
// Once created, these are never modified or deleted.
type Operation struct {
	ID      string        `json:"id" db:"id"`
	Kind    OperationKind `json:"kind" db:"kind"`
	Account string        `json:"account" db:"account"`

	// Liquidator is set for liquidations; Account is then the debtor.
	Liquidator       string          `json:"liquidator,omitempty" db:"liquidator"`
	Asset            string          `json:"asset,omitempty" db:"asset"`
	CollateralAmount decimal.Decimal `json:"collateral_amount" db:"collateral_amount"`
	DebtAmount       decimal.Decimal `json:"debt_amount" db:"debt_amount"`
	Timestamp        time.Time       `json:"timestamp" db:"timestamp"`

	// Rows are the post-operation balances of every book entry it touched.
	Rows []BookRow `json:"rows"`
}

// BookRow is the balance of one book entry right after an operation.
type BookRow struct {
	OperationID string          `json:"operation_id" db:"operation_id"`
	Account     string          `json:"account" db:"account"`
	Book        Book            `json:"book" db:"book"`
	Asset       string          `json:"asset,omitempty" db:"asset"` // empty for debt
	Balance     decimal.Decimal `json:"balance" db:"balance"`
}

// CollateralPosition is one asset line of an account.
type CollateralPosition struct {
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// AccountInfo aggregates an account's books with its live valuation.
type AccountInfo struct {
	Account       string          `json:"account"`
	Debt          decimal.Decimal `json:"debt"`
	CollateralUSD decimal.Decimal `json:"collateral_usd"`

	// HealthFactor is nil when the account carries no debt (unbounded).
	HealthFactor *decimal.Decimal     `json:"health_factor"`
	Liquidatable bool                 `json:"liquidatable"`
	Collateral   []CollateralPosition `json:"collateral"`

	// MaxMintable is the extra debt the account could mint at current prices.
	MaxMintable decimal.Decimal `json:"max_mintable"`
}

// AssetInfo describes a registered collateral asset and its current price.
type AssetInfo struct {
	ID           string          `json:"id"`
	Token        string          `json:"token"`
	FeedDecimals uint8           `json:"feed_decimals"`
	PriceUSD     decimal.Decimal `json:"price_usd"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Deposited    decimal.Decimal `json:"deposited"`
}
