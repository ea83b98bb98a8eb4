package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

// ErrDecode marks a stream message that is not a tick. The message is dropped.
var ErrDecode = errors.New("feed: undecodable message")

// DecodeTick parses one stream message. The payload must be a JSON object with
// numeric "timestamp" and "price" fields; other fields are ignored. Values are
// not range checked.
func DecodeTick(payload []byte) (models.Tick, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return models.Tick{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if fields == nil {
		return models.Tick{}, fmt.Errorf("%w: payload is not an object", ErrDecode)
	}

	ts, err := numberField(fields, "timestamp")
	if err != nil {
		return models.Tick{}, err
	}
	price, err := numberField(fields, "price")
	if err != nil {
		return models.Tick{}, err
	}

	tick := models.Tick{}
	if tick.Timestamp, err = timestampMillis(ts); err != nil {
		return models.Tick{}, err
	}
	if tick.Price, err = price.Float64(); err != nil {
		return models.Tick{}, fmt.Errorf("%w: price %s: %v", ErrDecode, price, err)
	}
	return tick, nil
}

// numberField insists on a bare JSON number: json.Number alone would also
// accept quoted numerals.
func numberField(fields map[string]json.RawMessage, name string) (json.Number, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrDecode, name)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return "", fmt.Errorf("%w: %q is not a number: %s", ErrDecode, name, raw)
	}
	return json.Number(raw), nil
}

// timestampMillis accepts integer millis, or any number that truncates to an
// int64 (1.7e12, 1700000000000.9). Values outside the int64 range are rejected.
func timestampMillis(n json.Number) (int64, error) {
	if ms, err := n.Int64(); err == nil {
		return ms, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %s: %v", ErrDecode, n, err)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is itself out of range
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: timestamp %s out of range", ErrDecode, n)
	}
	return int64(math.Trunc(f)), nil
}
