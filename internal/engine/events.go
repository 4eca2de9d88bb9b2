package engine

import (
	"strconv"

	"github.com/NikolayPIvanov/DEX/libs/kafka"
	"github.com/google/uuid"
)

const (
	EventTypeDeposit        = "exchange.deposit"
	EventTypeWithdraw       = "exchange.withdraw"
	EventTypeOrderCreated   = "exchange.order.created"
	EventTypeOrderCancelled = "exchange.order.cancelled"
	EventTypeTrade          = "exchange.trade"
)

// Amounts travel as decimal strings: uint64 does not survive JSON number
// round-trips past 2^53.
type DepositEvent struct {
	kafka.Envelope
	Asset      string `json:"asset"`
	Account    string `json:"account"`
	Amount     string `json:"amount"`
	NewBalance string `json:"new_balance"`
}

type WithdrawEvent struct {
	kafka.Envelope
	Asset      string `json:"asset"`
	Account    string `json:"account"`
	Amount     string `json:"amount"`
	NewBalance string `json:"new_balance"`
}

type OrderCreatedEvent struct {
	kafka.Envelope
	OrderID    uint64 `json:"order_id"`
	Owner      string `json:"owner"`
	SellAsset  string `json:"sell_asset"`
	SellAmount string `json:"sell_amount"`
	BuyAsset   string `json:"buy_asset"`
	BuyAmount  string `json:"buy_amount"`
	CreatedAt  string `json:"created_at"`
}

type OrderCancelledEvent struct {
	kafka.Envelope
	OrderID uint64 `json:"order_id"`
}

type TradeEvent struct {
	kafka.Envelope
	OrderID    uint64 `json:"order_id"`
	Taker      string `json:"taker"`
	Owner      string `json:"owner"`
	SellAsset  string `json:"sell_asset"`
	SellAmount string `json:"sell_amount"`
	BuyAsset   string `json:"buy_asset"`
	BuyAmount  string `json:"buy_amount"`
	Fee        string `json:"fee"`
	ExecutedAt string `json:"executed_at"`
}

func formatAmount(amount uint64) string {
	return strconv.FormatUint(amount, 10)
}

func formatAccount(account uuid.UUID) string {
	return account.String()
}

func formatOrderID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
