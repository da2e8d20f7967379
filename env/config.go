package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	StationID string
	Paths     PathConfig
	Sampling  SamplingConfig
	Kafka     KafkaConfig
	MQTT      MQTTConfig
	WOW       WOWConfig
	// DatabaseURL enables the postgres minute store when set.
	DatabaseURL string
	SendProm    bool
	MetricsAddr string
}

// PathConfig holds the three directories batch files move through.
type PathConfig struct {
	Live    string
	Pending string
	Archive string
	Current string
}

// Records is where reduced batch files end up.
func (p PathConfig) Records() string {
	return filepath.Join(p.Archive, "records")
}

type SamplingConfig struct {
	Interval    time.Duration
	RotateAt    string // HH:MM UTC, "off" disables the wall clock cutoff
	MaxRows     int    // 0 disables the row count cutoff
	VaneTimeout time.Duration
	VaneTable   string
	Elevation   float64
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
}

type WOWConfig struct {
	SiteID string
	Pin    string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	base := getEnv("DATA_DIR", "/home/admin/weather-station/data")

	cfg := &Config{
		StationID: getEnv("STATION_ID", "weather-station"),
		Paths: PathConfig{
			Live:    getEnv("LIVE_DIR", filepath.Join(base, "live")),
			Pending: getEnv("PENDING_DIR", filepath.Join(base, "pending")),
			Archive: getEnv("ARCHIVE_DIR", filepath.Join(base, "archive")),
			Current: getEnv("CURRENT_FILE", filepath.Join(base, "current.csv")),
		},
		Sampling: SamplingConfig{
			RotateAt:  getEnv("ROTATE_AT", "05:59"),
			VaneTable: getEnv("VANE_TABLE", ""),
		},
		Kafka: KafkaConfig{
			Topic: getEnv("KAFKA_TOPIC", "weather.samples"),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", ""),
			ClientID: getEnv("MQTT_CLIENT_ID", "weather-station"),
			Topic:    getEnv("MQTT_TOPIC", "weather/samples"),
			Username: getEnv("MQTT_USERNAME", ""),
			Password: getEnv("MQTT_PASSWORD", ""),
		},
		WOW: WOWConfig{
			SiteID: getEnv("WOWSITEID", ""),
			Pin:    getEnv("WOWPIN", ""),
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SendProm:    getEnv("SENDPROMDATA", "") == "true",
		MetricsAddr: getEnv("METRICS_ADDR", ":80"),
	}

	if strings.EqualFold(cfg.Sampling.RotateAt, "off") {
		cfg.Sampling.RotateAt = ""
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.Sampling.Interval, err = getEnvAsDuration("SAMPLE_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.Sampling.VaneTimeout, err = getEnvAsDuration("VANE_TIMEOUT", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Sampling.MaxRows, err = getEnvAsInt("MAX_ROWS", 0); err != nil {
		return nil, err
	}
	if cfg.Sampling.Elevation, err = getEnvAsFloat("ELEVATION", 370); err != nil {
		return nil, err
	}
	if cfg.Sampling.Interval <= 0 {
		return nil, fmt.Errorf("invalid SAMPLE_INTERVAL [%v]", cfg.Sampling.Interval)
	}
	if cfg.Sampling.RotateAt == "" && cfg.Sampling.MaxRows <= 0 {
		return nil, fmt.Errorf("one of ROTATE_AT or MAX_ROWS must be set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
