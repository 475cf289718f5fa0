package communicator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/config"
	"github.com/bilal/orion-agent/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer is responsible ONLY for Kafka interactions
type KafkaProducer struct {
	agentName     string
	alertsWriter  messageWriter
	metricsWriter messageWriter
	timeout       time.Duration
	log           zerolog.Logger
}

// NewKafkaProducer initializes Kafka writers
func NewKafkaProducer(cfg *config.Config, log zerolog.Logger) (*KafkaProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}

	alertsWriter := kafka.NewWriter(writerConfig(cfg.Kafka.Brokers, cfg.Kafka.AlertsTopic))
	metricsWriter := kafka.NewWriter(writerConfig(cfg.Kafka.Brokers, cfg.Kafka.MetricsTopic))

	p := newKafkaProducer(cfg.Agent.Name, alertsWriter, metricsWriter, log)
	p.log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("kafka producer initialized")
	return p, nil
}

// writerBatchTimeout keeps synchronous writes from stalling the loop for
// kafka-go's 1s default.
const writerBatchTimeout = 10 * time.Millisecond

func writerConfig(brokers []string, topic string) kafka.WriterConfig {
	return kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
		BatchTimeout: writerBatchTimeout,
	}
}

func newKafkaProducer(agent string, alerts, metrics messageWriter, log zerolog.Logger) *KafkaProducer {
	return &KafkaProducer{
		agentName:     agent,
		alertsWriter:  alerts,
		metricsWriter: metrics,
		timeout:       5 * time.Second,
		log:           log.With().Str("component", "kafka").Logger(),
	}
}

// PublishAlert publishes an alert notification keyed by alert ID.
func (p *KafkaProducer) PublishAlert(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	return p.alertsWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.AlertID),
		Value: data,
	})
}

// PublishSnapshot publishes one cycle's snapshot.
func (p *KafkaProducer) PublishSnapshot(ctx context.Context, snap metrics.Snapshot) error {
	payload := SnapshotPayload{
		AgentName:     p.agentName,
		Snapshot:      snap,
		CorrelationID: uuid.New().String(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.metricsWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.agentName),
		Value: data,
	})
}

// Notify implements alert.Notifier. Delivery is bounded and best effort.
func (p *KafkaProducer) Notify(a alert.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.PublishAlert(ctx, newNotification(p.agentName, a)); err != nil {
		p.log.Error().Err(err).Str("title", a.Title).Msg("publish alert failed")
	}
}

// Close shuts down Kafka writers gracefully
func (p *KafkaProducer) Close() error {
	p.log.Info().Msg("closing kafka producer")

	return errors.Join(p.alertsWriter.Close(), p.metricsWriter.Close())
}
