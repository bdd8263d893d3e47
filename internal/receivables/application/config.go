package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	receivables "bizledger/internal/receivables/domain"
)

// DefaultsConfig is the single fallback used when no customer or company settings exist.
type DefaultsConfig struct {
	GracePeriodDays     int     `yaml:"grace_period_days"`
	InterestRatePercent float64 `yaml:"interest_rate_percent"`
}

// SweepConfig controls the scheduled reconciliation sweep.
type SweepConfig struct {
	Interval    time.Duration `yaml:"interval"`
	DailyAt     string        `yaml:"daily_at"`
	Concurrency int           `yaml:"concurrency"`
	NodeID      int64         `yaml:"node_id"`
}

// KafkaConfig configures status change event publishing.
type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	BatchTimeout   time.Duration `yaml:"batch_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// Config defines receivables engine configuration.
type Config struct {
	Defaults          DefaultsConfig `yaml:"defaults"`
	OverpaymentPolicy string         `yaml:"overpayment_policy"`
	Sweep             SweepConfig    `yaml:"sweep"`
	Kafka             KafkaConfig    `yaml:"kafka"`
	WebhookURL        string         `yaml:"webhook_url"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: DefaultsConfig{
			GracePeriodDays:     30,
			InterestRatePercent: 18,
		},
		OverpaymentPolicy: getenvDefault("RECEIVABLES_OVERPAYMENT_POLICY", string(receivables.OverpaymentCap)),
		WebhookURL:        os.Getenv("RECEIVABLES_WEBHOOK_URL"),
	}

	if path := os.Getenv("RECEIVABLES_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = getenvDuration("RECEIVABLES_SWEEP_INTERVAL", 0)
	}
	if cfg.Sweep.DailyAt == "" {
		cfg.Sweep.DailyAt = getenvDefault("RECEIVABLES_DAILY_AT", "01:00")
	}
	if cfg.Sweep.Concurrency <= 0 {
		cfg.Sweep.Concurrency = getenvIntDefault("RECEIVABLES_SWEEP_CONCURRENCY", 4)
	}
	if cfg.Sweep.NodeID == 0 {
		cfg.Sweep.NodeID = int64(getenvIntDefault("RECEIVABLES_NODE_ID", 1))
	}
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = splitCSV(os.Getenv("KAFKA_BROKERS"))
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = getenvDefault("KAFKA_TOPIC", "receivables.entry_status_changed")
	}
	if cfg.Kafka.BatchTimeout <= 0 {
		cfg.Kafka.BatchTimeout = getenvDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond)
	}
	if cfg.Kafka.PublishTimeout <= 0 {
		cfg.Kafka.PublishTimeout = getenvDuration("KAFKA_PUBLISH_TIMEOUT", 5*time.Second)
	}
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = os.Getenv("RECEIVABLES_WEBHOOK_URL")
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Defaults.GracePeriodDays < 0 {
		return errors.New("receivables config: negative default grace period")
	}
	if c.Defaults.InterestRatePercent < 0 {
		return errors.New("receivables config: negative default interest rate")
	}
	if _, err := receivables.ParseOverpaymentPolicy(c.OverpaymentPolicy); err != nil {
		return err
	}
	if c.Sweep.DailyAt != "" {
		if _, _, err := parseDailyAt(c.Sweep.DailyAt); err != nil {
			return fmt.Errorf("receivables config: daily_at %q: %w", c.Sweep.DailyAt, err)
		}
	}
	if c.Sweep.NodeID < 0 || c.Sweep.NodeID > 1023 {
		return fmt.Errorf("receivables config: node id %d out of range", c.Sweep.NodeID)
	}
	return nil
}

// DomainDefaults converts the configured defaults for the settings resolver.
func (c Config) DomainDefaults() receivables.Defaults {
	return receivables.Defaults{
		GracePeriodDays:     c.Defaults.GracePeriodDays,
		InterestRatePercent: decimal.NewFromFloat(c.Defaults.InterestRatePercent),
	}
}

// Policy returns the parsed overpayment policy.
func (c Config) Policy() receivables.OverpaymentPolicy {
	policy, err := receivables.ParseOverpaymentPolicy(c.OverpaymentPolicy)
	if err != nil {
		return receivables.OverpaymentCap
	}
	return policy
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
