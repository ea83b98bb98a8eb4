package ledger

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Rejection reasons. They are reported in Outcome.Reason, never returned as errors.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNoPrice            = errors.New("no price observed yet")
	ErrInvalidShares      = errors.New("share count must be positive")
	ErrPositionLimit      = errors.New("position would exceed the share limit")
)

// Clock is injected so entry timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Outcome is the result of a Buy or Sell request.
type Outcome struct {
	Accepted bool
	Reason   error  // nil when accepted
	Entry    *Entry // appended entry, nil when rejected
	Snapshot Snapshot
}

// Snapshot is a read-only copy of the ledger for display.
type Snapshot struct {
	Balance      decimal.Decimal `json:"balance"`
	OwnedShares  int64           `json:"owned_shares"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	HasPrice     bool            `json:"has_price"`
	Log          []Entry         `json:"log"`
}

// Ledger is the simulated trading account. It is not safe for concurrent use;
// the owning session serializes every call.
type Ledger struct {
	balance     decimal.Decimal
	ownedShares int64
	log         []Entry

	price    decimal.Decimal
	hasPrice bool

	clock  Clock
	logger *zap.Logger
}

// New opens an account with the given starting cash and no shares.
func New(initialBalance decimal.Decimal, clock Clock, logger *zap.Logger) *Ledger {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		balance: initialBalance,
		log:     make([]Entry, 0, 64),
		clock:   clock,
		logger:  logger,
	}
}

// ObservePrice records the latest tick price; every later Buy/Sell is priced at it.
func (l *Ledger) ObservePrice(price float64) {
	l.price = decimal.NewFromFloat(price)
	l.hasPrice = true
}

// Buy purchases shares at the current price.
// Accepted only when the cost is strictly below the balance.
func (l *Ledger) Buy(shares int64) Outcome {
	if reason := l.precheck(shares); reason != nil {
		return l.reject(OpBuy, shares, reason)
	}

	if shares > math.MaxInt64-l.ownedShares {
		return l.reject(OpBuy, shares, ErrPositionLimit)
	}
	cost := l.price.Mul(decimal.NewFromInt(shares))
	if !cost.LessThan(l.balance) {
		return l.reject(OpBuy, shares, ErrInsufficientFunds)
	}

	l.balance = l.balance.Sub(cost)
	l.ownedShares += shares
	return l.accept(OpBuy, shares)
}

// Sell disposes of shares at the current price.
func (l *Ledger) Sell(shares int64) Outcome {
	if reason := l.precheck(shares); reason != nil {
		return l.reject(OpSell, shares, reason)
	}

	if shares > l.ownedShares {
		return l.reject(OpSell, shares, ErrInsufficientShares)
	}

	l.balance = l.balance.Add(l.price.Mul(decimal.NewFromInt(shares)))
	l.ownedShares -= shares
	return l.accept(OpSell, shares)
}

func (l *Ledger) precheck(shares int64) error {
	if shares <= 0 {
		return ErrInvalidShares
	}
	if !l.hasPrice {
		return ErrNoPrice
	}
	return nil
}

func (l *Ledger) accept(op Operation, shares int64) Outcome {
	entry := Entry{
		ID:        uuid.NewString(),
		Operation: op,
		Timestamp: l.clock.Now().UnixMilli(),
		Shares:    shares,
		Price:     l.price,
	}
	l.log = append(l.log, entry)

	l.logger.Info("Trade accepted",
		zap.Stringer("op", op),
		zap.Int64("shares", shares),
		zap.Stringer("price", l.price),
		zap.Stringer("balance", l.balance),
		zap.Int64("owned", l.ownedShares),
	)

	return Outcome{Accepted: true, Entry: &entry, Snapshot: l.Snapshot()}
}

func (l *Ledger) reject(op Operation, shares int64, reason error) Outcome {
	l.logger.Info("Trade rejected",
		zap.Stringer("op", op),
		zap.Int64("shares", shares),
		zap.Stringer("price", l.price),
		zap.Stringer("balance", l.balance),
		zap.Int64("owned", l.ownedShares),
		zap.NamedError("reason", reason),
	)
	return Outcome{Reason: reason, Snapshot: l.Snapshot()}
}

// Snapshot copies the current state, including the log.
func (l *Ledger) Snapshot() Snapshot {
	entries := make([]Entry, len(l.log))
	copy(entries, l.log)
	return Snapshot{
		Balance:      l.balance,
		OwnedShares:  l.ownedShares,
		CurrentPrice: l.price,
		HasPrice:     l.hasPrice,
		Log:          entries,
	}
}

func (l *Ledger) Balance() decimal.Decimal { return l.balance }
func (l *Ledger) OwnedShares() int64       { return l.ownedShares }
func (l *Ledger) Len() int                 { return len(l.log) }
