package fanout

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const firehosePartitions = 4

// KafkaDialer and KafkaConn abstract broker connections so topic
// bootstrap can be tested without a cluster.
type KafkaDialer interface {
	DialContext(ctx context.Context, network, address string) (KafkaConn, error)
}

type KafkaConn interface {
	Controller() (kafka.Broker, error)
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicEnsurer creates the firehose topic on startup if it does not
// exist yet. Best effort: the firehose tolerates a missing topic with
// auto-creation enabled, this just avoids losing the first batch.
type TopicEnsurer struct {
	logger *zap.Logger
	dialer KafkaDialer
	sleep  func(time.Duration)
}

func NewTopicEnsurer(dialer KafkaDialer, logger *zap.Logger) *TopicEnsurer {
	return &TopicEnsurer{logger: logger, dialer: dialer, sleep: time.Sleep}
}

func (te *TopicEnsurer) Ensure(ctx context.Context, brokers []string, topic string) {
	var conn KafkaConn
	var err error

	for _, addr := range brokers {
		conn, err = te.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
	}
	if err != nil {
		te.logger.Warn("topic bootstrap: no broker reachable", zap.Error(err))
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		te.logger.Warn("topic bootstrap: controller lookup failed", zap.Error(err))
		return
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := te.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		te.logger.Warn("topic bootstrap: controller dial failed", zap.Error(err))
		return
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     firehosePartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		// Usually "topic already exists".
		te.logger.Info("topic creation returned", zap.String("topic", topic), zap.Error(err))
	}

	te.waitForPartitions(conn, topic)
}

func (te *TopicEnsurer) waitForPartitions(conn KafkaConn, topic string) {
	for i := 0; i < 5; i++ {
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			te.logger.Info("firehose topic ready", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
			return
		}
		te.sleep(200 * time.Millisecond)
	}
	te.logger.Warn("timed out waiting for firehose topic", zap.String("topic", topic))
}

// NetDialer adapts *kafka.Dialer to KafkaDialer.
type NetDialer struct{ *kafka.Dialer }

func (d *NetDialer) DialContext(ctx context.Context, network, address string) (KafkaConn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &netConn{Conn: conn}, nil
}

type netConn struct{ *kafka.Conn }

func (c *netConn) Controller() (kafka.Broker, error) { return c.Conn.Controller() }
func (c *netConn) CreateTopics(topics ...kafka.TopicConfig) error {
	return c.Conn.CreateTopics(topics...)
}
func (c *netConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	return c.Conn.ReadPartitions(topics...)
}
func (c *netConn) Close() error { return c.Conn.Close() }
