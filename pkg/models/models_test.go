package models_test

import (
	"encoding/json"
	"testing"

	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

func TestKeys(t *testing.T) {
	if got := models.SnapshotKey("AAPL"); got != "stock:AAPL" {
		t.Errorf("Expected stock:AAPL, got %s", got)
	}
	if got := models.PriceChannel("AAPL"); got != "prices.AAPL" {
		t.Errorf("Expected prices.AAPL, got %s", got)
	}

	cases := map[string]struct {
		symbol string
		ok     bool
	}{
		"prices.AAPL":  {"AAPL", true},
		"prices.BRK.B": {"BRK.B", true},
		"prices.":      {"", false},
		"quotes.AAPL":  {"", false},
		"":             {"", false},
	}
	for channel, want := range cases {
		sym, ok := models.SymbolFromChannel(channel)
		if sym != want.symbol || ok != want.ok {
			t.Errorf("SymbolFromChannel(%q) = %q, %v; want %q, %v", channel, sym, ok, want.symbol, want.ok)
		}
	}
}

func TestStockUpdate_Tick(t *testing.T) {
	raw := `{"symbol":"AAPL","price":150.25,"timestamp":1700000000000,"seq_id":9}`

	var u models.StockUpdate
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	tick := u.Tick()
	if tick.Timestamp != 1700000000000 || tick.Price != 150.25 {
		t.Errorf("Unexpected tick %+v", tick)
	}
}
