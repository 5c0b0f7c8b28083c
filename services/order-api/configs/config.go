package configs

import (
	"time"

	"github.com/freshbasket/fulfillment-core/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Port          string `mapstructure:"PORT" validate:"required"`
	PrimaryDbAddr string `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReadDbAddr    string `mapstructure:"READ_DB_ADDR"`
	MaxDbCons     int32  `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons     int32  `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`

	// Kafka is optional for single-node deployments; when brokers are unset
	// the risk scan runs in-process instead of through the worker.
	KafkaBrokers       string        `mapstructure:"KAFKA_BROKERS"`
	KafkaRiskTopic     string        `mapstructure:"KAFKA_RISK_TOPIC" validate:"required"`
	KafkaPartition     uint32        `mapstructure:"KAFKA_PARTITION" validate:"min=1"`
	KafkaRiskRetention time.Duration `mapstructure:"KAFKA_RISK_RETENTION"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	DefaultSlotStrategy string        `mapstructure:"DEFAULT_SLOT_STRATEGY" validate:"required,oneof=earliest_available weekend_priority"`
	AdminWebhookURL     string        `mapstructure:"ADMIN_WEBHOOK_URL"`
	OrderListLimit      int           `mapstructure:"ORDER_LIST_LIMIT" validate:"min=1"`
	RiskScanWindow      time.Duration `mapstructure:"RISK_SCAN_WINDOW"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app")
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("KAFKA_RISK_TOPIC", "order-risk-scan")
	viper.SetDefault("KAFKA_PARTITION", "4")
	viper.SetDefault("KAFKA_RISK_RETENTION", "24h")
	viper.SetDefault("DEFAULT_SLOT_STRATEGY", "earliest_available")
	viper.SetDefault("ORDER_LIST_LIMIT", "50")
	viper.SetDefault("RISK_SCAN_WINDOW", "24h")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running in test mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running in development mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/order-api/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
