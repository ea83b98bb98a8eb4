package chart

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

// Point is one (timestamp, price) pair on the chart.
// It encodes as a two element JSON array, the shape chart libraries take directly.
type Point struct {
	Timestamp int64
	Price     float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Timestamp, p.Price})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var pair []json.Number
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("chart point needs 2 elements, got %d", len(pair))
	}
	ts, err := pair[0].Int64()
	if err != nil {
		return fmt.Errorf("chart point timestamp: %w", err)
	}
	price, err := pair[1].Float64()
	if err != nil {
		return fmt.Errorf("chart point price: %w", err)
	}
	p.Timestamp, p.Price = ts, price
	return nil
}

// Renderer paints the full tick history. It is handed the whole sequence on
// every update and must treat it as a replacement, not an increment.
type Renderer interface {
	Render(points []Point)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(points []Point)

func (f RenderFunc) Render(points []Point) { f(points) }

// History is the ordered tick sequence since the stream opened.
type History struct {
	points []Point
}

func NewHistory() *History {
	return &History{points: make([]Point, 0, 1024)}
}

// Append records a tick in arrival order; no sorting, no dedup.
func (h *History) Append(t models.Tick) {
	h.points = append(h.points, Point{Timestamp: t.Timestamp, Price: t.Price})
}

// Points returns a copy of the whole history.
func (h *History) Points() []Point {
	out := make([]Point, len(h.points))
	copy(out, h.points)
	return out
}

func (h *History) Len() int { return len(h.points) }

// LogRenderer is the fallback surface when no viewer is attached.
type LogRenderer struct {
	Logger *zap.Logger
}

func (r LogRenderer) Render(points []Point) {
	if len(points) == 0 {
		return
	}
	last := points[len(points)-1]
	r.Logger.Debug("Chart updated",
		zap.Int("points", len(points)),
		zap.Int64("last_ts", last.Timestamp),
		zap.Float64("last_price", last.Price),
	)
}
