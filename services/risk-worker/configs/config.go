package configs

import (
	"time"

	"github.com/freshbasket/fulfillment-core/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for risk-worker.
type Config struct {
	MetricsAddr   string `mapstructure:"METRICS_ADDR" validate:"required"`
	KafkaBrokers  string `mapstructure:"KAFKA_BROKERS" validate:"required"`
	PrimaryDbAddr string `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReadDbAddr    string `mapstructure:"READ_DB_ADDR"`
	MaxDbCons     int32  `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons     int32  `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`

	KafkaRiskTopic         string        `mapstructure:"KAFKA_RISK_TOPIC" validate:"required"`
	KafkaRiskConsumerGroup string        `mapstructure:"KAFKA_RISK_CONSUMER_GROUP" validate:"required"`
	KafkaDLQTopic          string        `mapstructure:"KAFKA_DLQ_TOPIC" validate:"required"`
	KafkaDLQRetention      time.Duration `mapstructure:"KAFKA_DLQ_RETENTION" validate:"required"`
	KafkaPartition         uint32        `mapstructure:"KAFKA_PARTITION" validate:"min=1"`

	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"required"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	MaxConcurrentScans int           `mapstructure:"MAX_CONCURRENT_SCANS" validate:"min=1"`
	ScanRateLimit      int           `mapstructure:"SCAN_RATE_LIMIT" validate:"min=1"`
	ScanRateBurst      int           `mapstructure:"SCAN_RATE_BURST" validate:"min=1"`
	ScanMaxThrottle    time.Duration `mapstructure:"SCAN_MAX_THROTTLE_WAIT" validate:"required"`
	AdminWebhookURL    string        `mapstructure:"ADMIN_WEBHOOK_URL"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app")
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("METRICS_ADDR", ":9091")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("KAFKA_RISK_TOPIC", "order-risk-scan")
	viper.SetDefault("KAFKA_RISK_CONSUMER_GROUP", "risk-worker")
	viper.SetDefault("KAFKA_DLQ_TOPIC", "order-risk-scan-dlq")
	viper.SetDefault("KAFKA_DLQ_RETENTION", "168h")
	viper.SetDefault("KAFKA_PARTITION", "4")
	viper.SetDefault("MAX_CONCURRENT_SCANS", "16")
	viper.SetDefault("SCAN_RATE_LIMIT", "50")
	viper.SetDefault("SCAN_RATE_BURST", "100")
	viper.SetDefault("SCAN_MAX_THROTTLE_WAIT", "2s")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/risk-worker/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}

	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
