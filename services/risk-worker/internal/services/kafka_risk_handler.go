package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/freshbasket/fulfillment-core/services/risk-worker/configs"
	"github.com/freshbasket/fulfillment-core/services/risk-worker/internal/observability"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// KafkaRiskHandler defines the interface for consuming scan jobs from Kafka.
type KafkaRiskHandler interface {
	Start() func()
}

// KafkaRiskConfig holds configuration and dependencies for the risk consumer.
type KafkaRiskConfig struct {
	Context context.Context
	Logger  *zap.Logger
	Config  *configs.Config
	Scanner RiskScanner

	// internal initialization
	consumer    *kafka.Consumer
	dlqProducer *kafka.Producer
	validate    *validator.Validate
	scanSem     chan struct{} // Semaphore to limit concurrent scans
}

// NewKafkaRiskConsumer initializes a KafkaRiskHandler with the provided
// configuration. It sets up the consumer, DLQ producer and semaphore.
func NewKafkaRiskConsumer(cfg KafkaRiskConfig) KafkaRiskHandler {
	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"group.id":           cfg.Config.KafkaRiskConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false, // manual offset management
	}
	kafkaConsumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		cfg.Logger.Fatal("Failed to create Kafka risk consumer", zap.Error(err))
	}

	dlqProducer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		cfg.Logger.Fatal("Failed to create DLQ producer", zap.Error(err))
	}

	cfg.scanSem = make(chan struct{}, cfg.Config.MaxConcurrentScans)
	cfg.consumer = kafkaConsumer
	cfg.dlqProducer = dlqProducer
	cfg.validate = validator.New()
	return &cfg
}

// Start initiates the consumption loop and returns a cleanup function.
func (k *KafkaRiskConfig) Start() func() {
	err := k.consumer.SubscribeTopics([]string{k.Config.KafkaRiskTopic}, nil)
	if err != nil {
		k.Logger.Fatal("Failed to subscribe to Kafka topic", zap.Error(err))
	}

	k.Logger.Info("Listening to Kafka topic",
		zap.String("topic", k.Config.KafkaRiskTopic),
		zap.String("group", k.Config.KafkaRiskConsumerGroup))

	go func() {
		for {
			msg, err := k.consumer.ReadMessage(-1)
			if err != nil {
				k.Logger.Error("Failed to read Kafka message", zap.Error(err))
				continue
			}
			observability.ScansReceived.WithLabelValues(k.Config.KafkaRiskTopic).Inc()
			// Acquire semaphore slot, blocking if limit is reached
			k.scanSem <- struct{}{}
			observability.InflightScans.Inc()
			go func(m *kafka.Message) {
				defer func() {
					<-k.scanSem
					observability.InflightScans.Dec()
				}()
				k.processMessage(m)
			}(msg)
		}
	}()

	return func() {
		if k.dlqProducer != nil {
			k.dlqProducer.Flush(5000)
			k.dlqProducer.Close()
		}
		if err := k.consumer.Close(); err != nil {
			k.Logger.Error("Failed to close Kafka consumer", zap.Error(err))
		}
		k.Logger.Info("Kafka consumer closed successfully")
	}
}

// processMessage decodes, validates and evaluates one scan job, committing
// the offset or routing to the DLQ.
func (k *KafkaRiskConfig) processMessage(msg *kafka.Message) {
	select {
	case <-k.Context.Done():
		return
	default:
	}

	start := time.Now()
	topic := k.Config.KafkaRiskTopic

	var job views.RiskScanJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		k.Logger.Error("Failed to decode Kafka message", zap.Error(err))
		observability.ScansFailed.WithLabelValues(topic, "unmarshal").Inc()
		k.sendToDLQ(job, "json unmarshal error", err.Error())
		_, _ = k.consumer.CommitMessage(msg) // skip invalid message
		return
	}

	if err := k.validate.Struct(&job); err != nil {
		k.Logger.Error("Failed to validate scan job", zap.Error(err))
		observability.ScansFailed.WithLabelValues(topic, "validation").Inc()
		k.sendToDLQ(job, "validation error", err.Error())
		_, _ = k.consumer.CommitMessage(msg) // skip invalid message
		return
	}

	scanErr := k.Scanner.Scan(k.Context, job)
	if scanErr != nil {
		k.Logger.Error("Failed to evaluate scan job, sending to DLQ",
			zap.String(pkg.TraceId, job.TraceID),
			zap.String(pkg.OrderId, job.OrderID),
			zap.Error(scanErr))
		observability.ScansFailed.WithLabelValues(topic, "evaluation").Inc()
		k.sendToDLQ(job, "evaluationError", scanErr.Error())
		if _, err := k.consumer.CommitMessage(msg); err != nil {
			k.Logger.Error("Failed to commit offset after DLQ", zap.Error(err))
		}
		return
	}

	if _, err := k.consumer.CommitMessage(msg); err != nil {
		k.Logger.Error("Failed to commit offset", zap.Error(err))
		return
	}
	observability.ScansProcessed.WithLabelValues(topic).Inc()
	observability.ScanLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	k.Logger.Debug("Scan job processed",
		zap.String(pkg.TraceId, job.TraceID),
		zap.String(pkg.OrderId, job.OrderID))
}

// sendToDLQ sends a failed job to the Dead Letter Queue with context.
func (k *KafkaRiskConfig) sendToDLQ(job views.RiskScanJob, reason, errMsg string) {
	payload := map[string]any{
		"job":           job,
		"failureReason": reason,
		"error":         errMsg,
		"failedAt":      time.Now().UTC().Format(time.RFC3339Nano),
	}

	b, err := json.Marshal(payload)
	if err != nil {
		k.Logger.Error("Failed to marshal DLQ payload",
			zap.String(pkg.OrderId, job.OrderID),
			zap.Error(err))
		return
	}

	err = k.dlqProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.Config.KafkaDLQTopic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(job.OrderID),
		Value: b,
	}, nil)
	if err != nil {
		k.Logger.Error("Failed to publish DLQ payload",
			zap.String(pkg.OrderId, job.OrderID),
			zap.Error(err))
		return
	}
	observability.DLQPublished.WithLabelValues(k.Config.KafkaDLQTopic, reason).Inc()
	k.Logger.Info("Sent to risk DLQ",
		zap.String(pkg.OrderId, job.OrderID),
		zap.String("reason", reason))
}
