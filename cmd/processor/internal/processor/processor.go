package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/pkg/config"
	"github.com/shubham-shewale/stock-dashboard/pkg/models"
)

var ErrInvalidUpdate = errors.New("processor: invalid update")

// Counters is a point-in-time copy of what the processor did with each message.
type Counters struct {
	Stored     int64
	Duplicates int64
	Invalid    int64
	Dropped    int64
	Failed     int64
}

type Processor struct {
	logger Logger
	rdb    RedisClient
	reader KafkaReader

	numWorkers int
	queueSize  int
	ttl        time.Duration

	stored     atomic.Int64
	duplicates atomic.Int64
	invalid    atomic.Int64
	dropped    atomic.Int64
	failed     atomic.Int64
}

func NewProcessor(cfg config.ProcessorConfig, logger Logger, rdb RedisClient, reader KafkaReader) *Processor {
	p := &Processor{
		logger:     logger,
		rdb:        rdb,
		reader:     reader,
		numWorkers: cfg.NumWorkers,
		queueSize:  cfg.QueueSize,
		ttl:        cfg.SnapshotTTL,
	}
	if p.numWorkers <= 0 {
		p.numWorkers = 1
	}
	if p.queueSize <= 0 {
		p.queueSize = 100
	}
	if p.ttl <= 0 {
		p.ttl = time.Hour
	}
	return p
}

// Run consumes until ctx is done, then drains the worker queues before returning.
func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, p.queueSize)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}

			// Deterministic Sharding: Same symbol always goes to same worker
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// latest beats complete for a live feed
				p.dropped.Add(1)
				p.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping processor...")

	// the reader must be gone before its queues close
	<-readerDone
	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	c := p.Counters()
	p.logger.Info("Processor stopped",
		zap.Int64("stored", c.Stored),
		zap.Int64("duplicates", c.Duplicates),
		zap.Int64("invalid", c.Invalid),
		zap.Int64("dropped", c.Dropped),
		zap.Int64("failed", c.Failed),
	)
	return nil
}

func (p *Processor) Counters() Counters {
	return Counters{
		Stored:     p.stored.Load(),
		Duplicates: p.duplicates.Load(),
		Invalid:    p.invalid.Load(),
		Dropped:    p.dropped.Load(),
		Failed:     p.failed.Load(),
	}
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background() // a Redis write is never cut short by shutdown

	// Local state for deduplication (only works because of deterministic sharding)
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		update, err := Parse(payload)
		if err != nil {
			p.invalid.Add(1)
			p.logger.Error("Rejecting update", zap.Error(err))
			continue
		}

		if update.SeqID <= lastSeq[update.Symbol] {
			p.duplicates.Add(1)
			p.logger.Debug("Skipping duplicate update", zap.String("symbol", update.Symbol), zap.Int64("seq_id", update.SeqID))
			continue
		}

		// SET and PUBLISH in one round trip
		pipe := p.rdb.Pipeline()
		pipe.Set(ctx, models.SnapshotKey(update.Symbol), payload, p.ttl)
		pipe.Publish(ctx, models.PriceChannel(update.Symbol), payload)

		if _, err := pipe.Exec(ctx); err != nil {
			p.failed.Add(1)
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", update.Symbol))
			continue
		}

		p.stored.Add(1)
		lastSeq[update.Symbol] = update.SeqID
		p.logger.Debug("Processed", zap.String("symbol", update.Symbol), zap.Int("worker_id", id), zap.Int64("seq_id", update.SeqID))
	}
}

// Parse decodes and checks an update. Only updates a dashboard can chart are
// forwarded: a symbol, a positive sequence id and a finite price.
func Parse(payload []byte) (models.StockUpdate, error) {
	var update models.StockUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return update, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	switch {
	case update.Symbol == "":
		return update, fmt.Errorf("%w: missing symbol", ErrInvalidUpdate)
	case update.SeqID <= 0:
		return update, fmt.Errorf("%w: seq_id must be positive, got %d", ErrInvalidUpdate, update.SeqID)
	case math.IsNaN(update.Price) || math.IsInf(update.Price, 0):
		return update, fmt.Errorf("%w: price is not finite", ErrInvalidUpdate)
	}
	return update, nil
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
