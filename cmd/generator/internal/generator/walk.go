package generator

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/pkg/config"
	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

var ErrInvalidWalk = errors.New("generator: base price and max step must be positive")

// PriceWalk emits a bounded random walk for a single symbol, one update per interval.
type PriceWalk struct {
	logger *zap.Logger
	writer KafkaWriter
	cfg    config.GeneratorConfig
	rand   Rand
	clock  Clock

	price float64
	seq   int64
}

func NewPriceWalk(logger *zap.Logger, writer KafkaWriter, cfg config.GeneratorConfig, rnd Rand, clock Clock) (*PriceWalk, error) {
	if cfg.BasePrice <= 0 || cfg.MaxStep <= 0 {
		return nil, ErrInvalidWalk
	}
	return &PriceWalk{
		logger: logger,
		writer: writer,
		cfg:    cfg,
		rand:   rnd,
		clock:  clock,
		price:  cfg.BasePrice,
		seq:    seqBase(clock),
	}, nil
}

// seqBase starts sequence ids at the wall clock in millis, so a restarted
// generator keeps ids above those the processor already saw (one tick per
// interval never outruns the clock).
func seqBase(clock Clock) int64 {
	if ms := clock.Now().UnixMilli(); ms > 0 {
		return ms
	}
	return 0
}

// Next advances the walk by at most MaxStep in either direction.
// A step that would take the price to zero or below is reflected.
func (w *PriceWalk) Next() models.StockUpdate {
	step := (w.rand.Float64()*2 - 1) * w.cfg.MaxStep
	next := w.price + step
	if next <= 0 {
		next = w.price + math.Abs(step)
	}
	w.price = next
	w.seq++

	return models.StockUpdate{
		Symbol:    w.cfg.Symbol,
		Price:     math.Round(next*100) / 100,
		Timestamp: w.clock.Now().UnixMilli(),
		SeqID:     w.seq,
	}
}

func (w *PriceWalk) Run(ctx context.Context) {
	w.logger.Info("Generator Started",
		zap.String("symbol", w.cfg.Symbol),
		zap.Float64("base_price", w.cfg.BasePrice),
		zap.Duration("interval", w.cfg.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Generator stopped", zap.Int64("last_seq_id", w.seq))
			return
		default:
		}

		update := w.Next()
		payload, err := json.Marshal(update)
		if err != nil {
			w.logger.Error("JSON Marshal Error", zap.Error(err))
			continue
		}

		err = w.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(update.Symbol), // one partition per symbol keeps ticks ordered
			Value: payload,
		})
		if err != nil {
			w.logger.Error("Kafka Write Error", zap.Error(err), zap.Int64("seq_id", update.SeqID))
		} else {
			w.logger.Debug("Sent update", zap.Float64("price", update.Price), zap.Int64("seq_id", update.SeqID))
		}

		w.clock.Sleep(w.cfg.Interval)
	}
}
