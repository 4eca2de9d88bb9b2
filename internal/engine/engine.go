package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/NikolayPIvanov/DEX/internal/custody"
	"github.com/NikolayPIvanov/DEX/internal/fee"
	"github.com/NikolayPIvanov/DEX/internal/ledger"
	"github.com/NikolayPIvanov/DEX/internal/orderstore"
	"github.com/NikolayPIvanov/DEX/internal/storage"
	"github.com/NikolayPIvanov/DEX/libs/kafka"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned when the caller attempts an owner-only action
// on someone else's order.
var ErrUnauthorized = errors.New("unauthorized")

const defaultEventsTopic = "exchange.events"

// Journal receives the ledger entries of committed operations for audit.
// Recording is best effort; a journal failure never unwinds the operation.
type Journal interface {
	RecordEntries(ctx context.Context, entries []storage.LedgerEntry) error
}

// Trade is the result of a successful fill.
type Trade struct {
	OrderID    uint64
	Taker      uuid.UUID
	Owner      uuid.UUID
	SellAsset  string
	SellAmount uint64
	BuyAsset   string
	BuyAmount  uint64
	Fee        uint64
	ExecutedAt time.Time
}

// Engine orchestrates deposits, withdrawals and the order lifecycle against
// the ledger and order store it exclusively owns. One mutex serializes every
// state-changing operation so a fill's four balance movements and the order
// transition commit as a unit; reads observe committed state only. Custody
// calls run outside the lock: they are remote and may be slow.
type Engine struct {
	mu       sync.RWMutex
	ledger   *ledger.Ledger
	orders   *orderstore.Store
	custody  custody.Transferer
	fees     fee.Policy
	producer kafka.Publisher
	topic    string
	journal  Journal
	logger   *slog.Logger
	metrics  *Metrics
}

func New(transferer custody.Transferer, fees fee.Policy, producer kafka.Publisher, eventsTopic string, journal Journal, logger *slog.Logger, metrics *Metrics) (*Engine, error) {
	if transferer == nil {
		return nil, fmt.Errorf("custody transferer is required")
	}
	if producer == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(eventsTopic) == "" {
		eventsTopic = defaultEventsTopic
	}

	return &Engine{
		ledger:   ledger.New(),
		orders:   orderstore.New(),
		custody:  transferer,
		fees:     fees,
		producer: producer,
		topic:    eventsTopic,
		journal:  journal,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func (e *Engine) FeeAccount() uuid.UUID {
	return e.fees.Account()
}

func (e *Engine) FeePercent() uint64 {
	return e.fees.Percent()
}

// Deposit pulls amount of asset from the account's external holdings into
// custody, then credits the ledger. The pull can fail; only on its success is
// the ledger touched. A credit failure after a successful pull is compensated
// by pushing the funds back.
func (e *Engine) Deposit(ctx context.Context, asset string, account uuid.UUID, amount uint64) error {
	start := time.Now()
	defer e.metrics.observeOperation("deposit", start)

	asset, err := validateMovement(asset, account, amount)
	if err != nil {
		e.metrics.incDeposit(asset, "invalid")
		return err
	}

	if err := e.custody.Pull(ctx, asset, account, amount); err != nil {
		e.metrics.incDeposit(asset, "transfer_error")
		e.logger.Error("deposit pull failed", "asset", asset, "account", account, "amount", amount, "error", err)
		return fmt.Errorf("custody pull: %w", err)
	}

	e.mu.Lock()
	if err := e.ledger.Credit(asset, account, amount); err != nil {
		e.mu.Unlock()
		if pushErr := e.custody.Push(ctx, asset, account, amount); pushErr != nil {
			e.logger.Error("deposit compensation failed, custody holds uncredited funds",
				"asset", asset, "account", account, "amount", amount, "error", pushErr)
		}
		e.metrics.incDeposit(asset, "ledger_error")
		return fmt.Errorf("ledger credit: %w", err)
	}
	newBalance := e.ledger.BalanceOf(asset, account)
	e.mu.Unlock()

	e.metrics.incDeposit(asset, "success")
	e.logger.Info("deposit", "asset", asset, "account", account, "amount", amount, "balance", newBalance)

	env, _ := kafka.NewEnvelope(EventTypeDeposit, 1, "")
	e.publish(ctx, asset, DepositEvent{
		Envelope:   env,
		Asset:      asset,
		Account:    formatAccount(account),
		Amount:     formatAmount(amount),
		NewBalance: formatAmount(newBalance),
	})
	e.record(ctx, []storage.LedgerEntry{{
		Account:       account,
		Asset:         asset,
		EntryType:     storage.EntryTypeCredit,
		Amount:        amount,
		ReferenceType: storage.ReferenceTypeDeposit,
		ReferenceID:   env.EventID,
	}})
	return nil
}

// Withdraw debits the ledger first, failing fast on insufficient balance with
// no custody movement, then pushes the funds out of custody. A failed push is
// compensated by re-crediting the ledger so tracked balance and custody stay
// equal.
func (e *Engine) Withdraw(ctx context.Context, asset string, account uuid.UUID, amount uint64) error {
	start := time.Now()
	defer e.metrics.observeOperation("withdraw", start)

	asset, err := validateMovement(asset, account, amount)
	if err != nil {
		e.metrics.incWithdrawal(asset, "invalid")
		return err
	}

	e.mu.Lock()
	if err := e.ledger.Debit(asset, account, amount); err != nil {
		e.mu.Unlock()
		e.metrics.incWithdrawal(asset, "insufficient")
		return fmt.Errorf("ledger debit: %w", err)
	}
	e.mu.Unlock()

	if err := e.custody.Push(ctx, asset, account, amount); err != nil {
		e.mu.Lock()
		creditErr := e.ledger.Credit(asset, account, amount)
		e.mu.Unlock()
		if creditErr != nil {
			e.logger.Error("withdraw compensation failed, ledger out of sync with custody",
				"asset", asset, "account", account, "amount", amount, "error", creditErr)
		}
		e.metrics.incWithdrawal(asset, "transfer_error")
		e.logger.Error("withdraw push failed", "asset", asset, "account", account, "amount", amount, "error", err)
		return fmt.Errorf("custody push: %w", err)
	}

	newBalance := e.BalanceOf(asset, account)
	e.metrics.incWithdrawal(asset, "success")
	e.logger.Info("withdraw", "asset", asset, "account", account, "amount", amount, "balance", newBalance)

	env, _ := kafka.NewEnvelope(EventTypeWithdraw, 1, "")
	e.publish(ctx, asset, WithdrawEvent{
		Envelope:   env,
		Asset:      asset,
		Account:    formatAccount(account),
		Amount:     formatAmount(amount),
		NewBalance: formatAmount(newBalance),
	})
	e.record(ctx, []storage.LedgerEntry{{
		Account:       account,
		Asset:         asset,
		EntryType:     storage.EntryTypeDebit,
		Amount:        amount,
		ReferenceType: storage.ReferenceTypeWithdrawal,
		ReferenceID:   env.EventID,
	}})
	return nil
}

// MakeOrder records a standing offer by owner. The sell balance is checked at
// creation time but not reserved; the owner can still spend it, which leaves
// the order unfillable until fill-time revalidation passes.
func (e *Engine) MakeOrder(ctx context.Context, owner uuid.UUID, sellAsset string, sellAmount uint64, buyAsset string, buyAmount uint64) (orderstore.Order, error) {
	start := time.Now()
	defer e.metrics.observeOperation("make_order", start)

	sellAsset, err := normalizeAsset(sellAsset)
	if err != nil {
		e.metrics.incOrderCreated("invalid")
		return orderstore.Order{}, fmt.Errorf("sell asset: %w", err)
	}
	buyAsset, err = normalizeAsset(buyAsset)
	if err != nil {
		e.metrics.incOrderCreated("invalid")
		return orderstore.Order{}, fmt.Errorf("buy asset: %w", err)
	}
	if owner == uuid.Nil {
		e.metrics.incOrderCreated("invalid")
		return orderstore.Order{}, fmt.Errorf("owner account is required")
	}
	if sellAmount == 0 || buyAmount == 0 {
		e.metrics.incOrderCreated("invalid")
		return orderstore.Order{}, fmt.Errorf("order amounts must be positive")
	}
	if sellAsset == buyAsset {
		e.metrics.incOrderCreated("invalid")
		return orderstore.Order{}, fmt.Errorf("sell and buy asset must differ")
	}

	e.mu.Lock()
	if e.ledger.BalanceOf(sellAsset, owner) < sellAmount {
		e.mu.Unlock()
		e.metrics.incOrderCreated("insufficient")
		return orderstore.Order{}, fmt.Errorf("sell balance: %w", ledger.ErrInsufficientBalance)
	}
	order := orderstore.Order{
		ID:         e.orders.NextID(),
		Owner:      owner,
		SellAsset:  sellAsset,
		SellAmount: sellAmount,
		BuyAsset:   buyAsset,
		BuyAmount:  buyAmount,
		Status:     orderstore.StatusOpen,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.orders.Insert(order); err != nil {
		e.mu.Unlock()
		e.metrics.incOrderCreated("error")
		return orderstore.Order{}, fmt.Errorf("insert order: %w", err)
	}
	e.mu.Unlock()

	e.metrics.incOrderCreated("success")
	e.logger.Info("order created", "order_id", order.ID, "owner", owner,
		"sell_asset", sellAsset, "sell_amount", sellAmount, "buy_asset", buyAsset, "buy_amount", buyAmount)

	env, _ := kafka.NewEnvelope(EventTypeOrderCreated, 1, "")
	e.publish(ctx, formatOrderID(order.ID), OrderCreatedEvent{
		Envelope:   env,
		OrderID:    order.ID,
		Owner:      formatAccount(owner),
		SellAsset:  sellAsset,
		SellAmount: formatAmount(sellAmount),
		BuyAsset:   buyAsset,
		BuyAmount:  formatAmount(buyAmount),
		CreatedAt:  order.CreatedAt.Format(time.RFC3339),
	})
	return order, nil
}

// CancelOrder transitions an open order to cancelled. Owner-only; nothing was
// escrowed at creation, so no ledger movement happens.
func (e *Engine) CancelOrder(ctx context.Context, caller uuid.UUID, id uint64) error {
	start := time.Now()
	defer e.metrics.observeOperation("cancel_order", start)

	e.mu.Lock()
	order, err := e.orders.Get(id)
	if err != nil {
		e.mu.Unlock()
		e.metrics.incOrderCancelled("not_found")
		return err
	}
	if order.Owner != caller {
		e.mu.Unlock()
		e.metrics.incOrderCancelled("unauthorized")
		return fmt.Errorf("cancel order %d: %w", id, ErrUnauthorized)
	}
	if err := e.orders.SetStatus(id, orderstore.StatusCancelled); err != nil {
		e.mu.Unlock()
		e.metrics.incOrderCancelled("invalid_state")
		return err
	}
	e.mu.Unlock()

	e.metrics.incOrderCancelled("success")
	e.logger.Info("order cancelled", "order_id", id, "owner", caller)

	env, _ := kafka.NewEnvelope(EventTypeOrderCancelled, 1, "")
	e.publish(ctx, formatOrderID(id), OrderCancelledEvent{Envelope: env, OrderID: id})
	return nil
}

// FillOrder executes an open order against the taker. Both sides are
// revalidated at fill time because creation escrows nothing. The four balance
// movements, the fee credit and the status transition commit atomically; any
// failed check leaves everything untouched.
func (e *Engine) FillOrder(ctx context.Context, taker uuid.UUID, id uint64) (Trade, error) {
	start := time.Now()
	defer e.metrics.observeOperation("fill_order", start)

	if taker == uuid.Nil {
		e.metrics.incTrade("invalid")
		return Trade{}, fmt.Errorf("taker account is required")
	}

	e.mu.Lock()
	order, err := e.orders.Get(id)
	if err != nil {
		e.mu.Unlock()
		e.metrics.incTrade("not_found")
		return Trade{}, err
	}
	if order.Status != orderstore.StatusOpen {
		e.mu.Unlock()
		e.metrics.incTrade("invalid_state")
		return Trade{}, fmt.Errorf("%w: order %d is %s", orderstore.ErrInvalidOrderState, id, order.Status)
	}
	if taker == order.Owner {
		e.mu.Unlock()
		e.metrics.incTrade("self_fill")
		return Trade{}, fmt.Errorf("%w: self fill of order %d", orderstore.ErrInvalidOrderState, id)
	}

	feeAmount := e.fees.Amount(order.BuyAmount)
	ownerReceives := order.BuyAmount - feeAmount

	if e.ledger.BalanceOf(order.SellAsset, order.Owner) < order.SellAmount {
		e.mu.Unlock()
		e.metrics.incTrade("owner_insufficient")
		return Trade{}, fmt.Errorf("owner sell balance: %w", ledger.ErrInsufficientBalance)
	}
	if e.ledger.BalanceOf(order.BuyAsset, taker) < order.BuyAmount {
		e.mu.Unlock()
		e.metrics.incTrade("taker_insufficient")
		return Trade{}, fmt.Errorf("taker buy balance: %w", ledger.ErrInsufficientBalance)
	}
	if err := e.creditHeadroom(order, taker, feeAmount, ownerReceives); err != nil {
		e.mu.Unlock()
		e.metrics.incTrade("overflow")
		return Trade{}, err
	}

	// Every movement below was validated under the lock held here, so none
	// can fail without the ledger having broken its own contract.
	mustApply(e.ledger.Debit(order.SellAsset, order.Owner, order.SellAmount))
	mustApply(e.ledger.Credit(order.SellAsset, taker, order.SellAmount))
	mustApply(e.ledger.Debit(order.BuyAsset, taker, order.BuyAmount))
	mustApply(e.ledger.Credit(order.BuyAsset, order.Owner, ownerReceives))
	mustApply(e.ledger.Credit(order.BuyAsset, e.fees.Account(), feeAmount))
	mustApply(e.orders.SetStatus(id, orderstore.StatusFilled))
	executedAt := time.Now().UTC()
	e.mu.Unlock()

	trade := Trade{
		OrderID:    id,
		Taker:      taker,
		Owner:      order.Owner,
		SellAsset:  order.SellAsset,
		SellAmount: order.SellAmount,
		BuyAsset:   order.BuyAsset,
		BuyAmount:  order.BuyAmount,
		Fee:        feeAmount,
		ExecutedAt: executedAt,
	}

	e.metrics.incTrade("success")
	e.metrics.addFee(order.BuyAsset, feeAmount)
	e.logger.Info("trade", "order_id", id, "taker", taker, "owner", order.Owner,
		"sell_asset", order.SellAsset, "sell_amount", order.SellAmount,
		"buy_asset", order.BuyAsset, "buy_amount", order.BuyAmount, "fee", feeAmount)

	eventID := kafka.DeterministicEventID(EventTypeTrade, formatOrderID(id))
	env, _ := kafka.NewEnvelopeWithID(eventID, EventTypeTrade, 1, "")
	e.publish(ctx, formatOrderID(id), TradeEvent{
		Envelope:   env,
		OrderID:    id,
		Taker:      formatAccount(taker),
		Owner:      formatAccount(order.Owner),
		SellAsset:  order.SellAsset,
		SellAmount: formatAmount(order.SellAmount),
		BuyAsset:   order.BuyAsset,
		BuyAmount:  formatAmount(order.BuyAmount),
		Fee:        formatAmount(feeAmount),
		ExecutedAt: executedAt.Format(time.RFC3339),
	})
	e.record(ctx, []storage.LedgerEntry{
		{Account: order.Owner, Asset: order.SellAsset, EntryType: storage.EntryTypeDebit, Amount: order.SellAmount, ReferenceType: storage.ReferenceTypeTrade, ReferenceID: eventID},
		{Account: taker, Asset: order.SellAsset, EntryType: storage.EntryTypeCredit, Amount: order.SellAmount, ReferenceType: storage.ReferenceTypeTrade, ReferenceID: eventID},
		{Account: taker, Asset: order.BuyAsset, EntryType: storage.EntryTypeDebit, Amount: order.BuyAmount, ReferenceType: storage.ReferenceTypeTrade, ReferenceID: eventID},
		{Account: order.Owner, Asset: order.BuyAsset, EntryType: storage.EntryTypeCredit, Amount: ownerReceives, ReferenceType: storage.ReferenceTypeTrade, ReferenceID: eventID},
		{Account: e.fees.Account(), Asset: order.BuyAsset, EntryType: storage.EntryTypeCredit, Amount: feeAmount, ReferenceType: storage.ReferenceTypeTrade, ReferenceID: eventID},
	})
	return trade, nil
}

func (e *Engine) BalanceOf(asset string, account uuid.UUID) uint64 {
	asset, err := normalizeAsset(asset)
	if err != nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.BalanceOf(asset, account)
}

// AssetTotal is the conservation-invariant read: the sum of all tracked
// balances for one asset, which must never exceed custody.
func (e *Engine) AssetTotal(asset string) (uint64, error) {
	asset, err := normalizeAsset(asset)
	if err != nil {
		return 0, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.AssetTotal(asset)
}

func (e *Engine) Order(id uint64) (orderstore.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.Get(id)
}

func (e *Engine) OrderCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.Count()
}

func (e *Engine) OpenOrders() []orderstore.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.Open()
}

// creditHeadroom verifies none of the fill's credits can wrap, accounting for
// the fee account possibly being one of the counterparties. Must run with
// e.mu held, before any movement.
func (e *Engine) creditHeadroom(order orderstore.Order, taker uuid.UUID, feeAmount, ownerReceives uint64) error {
	if e.ledger.BalanceOf(order.SellAsset, taker) > math.MaxUint64-order.SellAmount {
		return fmt.Errorf("taker sell credit: %w", ledger.ErrArithmeticOverflow)
	}
	feeAccount := e.fees.Account()
	ownerCredit := ownerReceives
	if feeAccount == order.Owner {
		ownerCredit = order.BuyAmount
	}
	if e.ledger.BalanceOf(order.BuyAsset, order.Owner) > math.MaxUint64-ownerCredit {
		return fmt.Errorf("owner buy credit: %w", ledger.ErrArithmeticOverflow)
	}
	// feeAccount == taker needs no check: the fee credit follows the larger
	// buy-side debit on the same balance.
	if feeAccount != order.Owner && feeAccount != taker {
		if e.ledger.BalanceOf(order.BuyAsset, feeAccount) > math.MaxUint64-feeAmount {
			return fmt.Errorf("fee credit: %w", ledger.ErrArithmeticOverflow)
		}
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, key string, event any) {
	if _, _, err := e.producer.PublishJSON(ctx, e.topic, key, event); err != nil {
		// the operation already committed; the sink is an observer
		e.logger.Error("event publish failed", "topic", e.topic, "key", key, "error", err)
	}
}

func (e *Engine) record(ctx context.Context, entries []storage.LedgerEntry) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordEntries(ctx, entries); err != nil {
		e.logger.Error("journal record failed", "error", err)
	}
}

func mustApply(err error) {
	if err != nil {
		panic(fmt.Sprintf("engine: atomic fill violated: %v", err))
	}
}

func validateMovement(asset string, account uuid.UUID, amount uint64) (string, error) {
	asset, err := normalizeAsset(asset)
	if err != nil {
		return asset, err
	}
	if account == uuid.Nil {
		return asset, fmt.Errorf("account is required")
	}
	if amount == 0 {
		return asset, fmt.Errorf("amount must be positive")
	}
	return asset, nil
}

func normalizeAsset(asset string) (string, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return "", fmt.Errorf("asset is required")
	}
	return asset, nil
}
