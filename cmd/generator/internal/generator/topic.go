package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrTopicNotReady = errors.New("generator: topic has no partitions")

// TopicCreator makes sure the tick topic exists before the walk starts writing.
type TopicCreator struct {
	logger *zap.Logger
	dialer KafkaDialer
	clock  Clock

	Partitions int
	Attempts   int
	Backoff    time.Duration
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, clock Clock) *TopicCreator {
	return &TopicCreator{
		logger:     logger,
		dialer:     dialer,
		clock:      clock,
		Partitions: 1, // a single symbol never needs more
		Attempts:   5,
		Backoff:    200 * time.Millisecond,
	}
}

// Ensure creates the topic through the cluster controller and waits until it
// reports partitions. An "already exists" answer from the controller is fine.
func (tc *TopicCreator) Ensure(ctx context.Context, brokers []string, topic string) error {
	var (
		conn KafkaConn
		err  error
	)
	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
		tc.logger.Debug("Broker unreachable", zap.String("broker", addr), zap.Error(err))
	}
	if conn == nil {
		return fmt.Errorf("dial brokers %v: %w", brokers, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}

	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     tc.Partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		tc.logger.Info("Topic creation finished (might already exist)", zap.String("topic", topic), zap.Error(err))
	} else {
		tc.logger.Info("Topic creation request sent", zap.String("topic", topic))
	}

	return tc.waitForTopic(ctx, conn, topic)
}

func (tc *TopicCreator) waitForTopic(ctx context.Context, conn KafkaConn, topic string) error {
	for i := 0; i < tc.Attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
			return nil
		}
		tc.clock.Sleep(tc.Backoff)
	}
	return fmt.Errorf("%w: %s", ErrTopicNotReady, topic)
}
