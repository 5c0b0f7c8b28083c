package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/fraud"
	kafkautils "github.com/freshbasket/fulfillment-core/pkg/kafka"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/freshbasket/fulfillment-core/services/order-api/configs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RiskDispatcher hands a committed order to the risk scoring pass. Dispatch
// must not block checkout and must never surface an error to it.
type RiskDispatcher interface {
	Dispatch(ctx context.Context, job views.RiskScanJob)
	Close()
}

// KafkaRiskDispatcher publishes scan jobs for the risk worker.
type KafkaRiskDispatcher struct {
	logger   *zap.Logger
	producer *kafka.Producer
	cnf      *configs.Config
}

// NewKafkaRiskDispatcher creates the risk topic if needed and starts an async
// producer with delivery report handling.
func NewKafkaRiskDispatcher(logger *zap.Logger, ctx context.Context, cnf *configs.Config) RiskDispatcher {
	topicConfig := kafkautils.KafkaConfig{
		BootstrapServers: cnf.KafkaBrokers,
		Topics: []kafkautils.TopicConfig{
			{
				Topic:             cnf.KafkaRiskTopic,
				NumPartitions:     int(cnf.KafkaPartition),
				ReplicationFactor: 1,
				Config: map[string]string{
					"cleanup.policy": "delete",
					"retention.ms":   fmt.Sprintf("%d", cnf.KafkaRiskRetention.Milliseconds()),
				},
			},
		},
	}
	err := kafkautils.InitKafkaTopics(logger, ctx, topicConfig)
	if err != nil {
		logger.Fatal("failed to initialize kafka topics", zap.Error(err))
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cnf.KafkaBrokers,
		"acks":               "all",
		"enable.idempotence": "true",
		"retries":            "1",
	})
	if err != nil {
		logger.Fatal("failed to create kafka producer", zap.Error(err))
	}
	logger.Info("kafka producer created successfully", zap.String("brokers", cnf.KafkaBrokers))
	go handleDeliveryReports(logger, p)
	return &KafkaRiskDispatcher{logger: logger, cnf: cnf, producer: p}
}

func (k KafkaRiskDispatcher) Dispatch(_ context.Context, job views.RiskScanJob) {
	msgBytes, err := json.Marshal(job)
	if err != nil {
		k.logger.Error("failed to marshal risk scan job",
			zap.String(pkg.TraceId, job.TraceID), zap.Error(err))
		return
	}

	orderID, err := uuid.Parse(job.OrderID)
	if err != nil {
		k.logger.Error("risk scan job carries invalid order id",
			zap.String(pkg.TraceId, job.TraceID), zap.Error(err))
		return
	}
	// Deterministic partitioning by order ID keeps redeliveries on one consumer.
	partition := int32(orderID.ID() % k.cnf.KafkaPartition)

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.cnf.KafkaRiskTopic,
			Partition: partition,
		},
		Key:   orderID[:],
		Value: msgBytes,
	}, nil)
	if err != nil {
		k.logger.Error("failed to publish risk scan job",
			zap.String(pkg.TraceId, job.TraceID),
			zap.String(pkg.OrderId, job.OrderID),
			zap.Error(err))
	}
}

func (k KafkaRiskDispatcher) Close() {
	k.producer.Close()
}

func handleDeliveryReports(logger *zap.Logger, p *kafka.Producer) {
	for e := range p.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				logger.Error("failed to publish message", zap.Error(ev.TopicPartition.Error))
			}
		}
	}
}

// InlineRiskDispatcher evaluates orders in-process. Used when no Kafka
// brokers are configured, typically in development or single-node deploys.
type InlineRiskDispatcher struct {
	logger *zap.Logger
	engine *fraud.Engine
}

func NewInlineRiskDispatcher(logger *zap.Logger, engine *fraud.Engine) RiskDispatcher {
	return &InlineRiskDispatcher{logger: logger, engine: engine}
}

func (d InlineRiskDispatcher) Dispatch(_ context.Context, job views.RiskScanJob) {
	go func() {
		// Detach from the request context; checkout has already returned.
		ctx := context.Background()
		orderID, err := uuid.Parse(job.OrderID)
		if err != nil {
			d.logger.Error("risk scan job carries invalid order id",
				zap.String(pkg.TraceId, job.TraceID), zap.Error(err))
			return
		}
		selection := &fraud.SlotSelection{
			WasRequested:     job.WasSlotRequested,
			Fulfilled:        job.RequestFulfilled,
			FallbackOccurred: job.WasSlotRequested && !job.RequestFulfilled,
		}
		if job.RequestedSlotID != "" {
			if slotID, err := uuid.Parse(job.RequestedSlotID); err == nil {
				selection.RequestedSlotID = &slotID
			}
		}
		if _, err := d.engine.EvaluateOrder(ctx, job.TraceID, orderID, selection); err != nil {
			d.logger.Error("inline risk evaluation failed",
				zap.String(pkg.TraceId, job.TraceID),
				zap.String(pkg.OrderId, job.OrderID),
				zap.Error(err))
		}
	}()
}

func (d InlineRiskDispatcher) Close() {}
