package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/stock-dashboard/cmd/generator/internal/generator"
)

// MockKafkaWriter records messages. With StopAfter set it calls Cancel once
// that many messages were written, which ends a Run loop deterministically.
type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
	Failures   int

	StopAfter int
	Cancel    context.CancelFunc
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		m.Failures++
		if m.StopAfter > 0 && m.Failures >= m.StopAfter && m.Cancel != nil {
			m.Cancel()
		}
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	if m.StopAfter > 0 && len(m.Messages) >= m.StopAfter && m.Cancel != nil {
		m.Cancel()
	}
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

type MockClock struct {
	CurrentTime time.Time
	Slept       time.Duration
}

func (m *MockClock) Now() time.Time { return m.CurrentTime }
func (m *MockClock) Sleep(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
	m.Slept += d
}

// MockRand cycles through Values.
type MockRand struct {
	Values []float64
	i      int
}

func (m *MockRand) Float64() float64 {
	if len(m.Values) == 0 {
		return 0.5
	}
	v := m.Values[m.i%len(m.Values)]
	m.i++
	return v
}

type MockKafkaConn struct {
	CreatedTopics []string
	Partitions    []int
	// ReadyAfter is how many ReadPartitions calls report no partitions first.
	ReadyAfter    int
	ControllerErr error
	reads         int
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	if m.ControllerErr != nil {
		return kafka.Broker{}, m.ControllerErr
	}
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}

func (m *MockKafkaConn) Close() error { return nil }

func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
		m.Partitions = append(m.Partitions, t.NumPartitions)
	}
	return nil
}

func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	m.reads++
	if m.reads <= m.ReadyAfter {
		return nil, nil
	}
	return []kafka.Partition{{ID: 0}}, nil
}

// MockKafkaDialer refuses addresses listed in Down and hands out ConnSpy otherwise.
type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	Down    map[string]bool
	Dialed  []string
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (generator.KafkaConn, error) {
	m.Dialed = append(m.Dialed, address)
	if m.Down[address] {
		return nil, errors.New("connection refused")
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}
