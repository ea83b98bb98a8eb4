package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Operation is the side of an accepted trade.
type Operation uint8

const (
	OpBuy Operation = iota
	OpSell
)

func (o Operation) String() string {
	switch o {
	case OpBuy:
		return "Buy"
	case OpSell:
		return "Sell"
	default:
		return fmt.Sprintf("UnknownOperation(%d)", o)
	}
}

func (o Operation) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(o.String())), nil
}

func (o *Operation) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "buy":
		*o = OpBuy
	case "sell":
		*o = OpSell
	default:
		return fmt.Errorf("unknown operation %q", string(b))
	}
	return nil
}

// Entry is one accepted action in the ledger log. Entries are values and are
// copied out of the ledger, so history cannot be edited through them.
type Entry struct {
	ID        string          `json:"id"`
	Operation Operation       `json:"operation"`
	Timestamp int64           `json:"timestamp"` // wall-clock millis at acceptance
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
}

// Amount is the cash moved by the entry.
func (e Entry) Amount() decimal.Decimal {
	return e.Price.Mul(decimal.NewFromInt(e.Shares))
}
