// Package config loads attention-monitor settings from defaults, an optional
// config file and ATTENTION_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/session"
)

// ErrInvalidConfig is returned when a parameter is outside its valid range.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix prefixes every environment override, e.g.
// ATTENTION_PIPELINE_DEBOUNCE_WINDOW.
const EnvPrefix = "ATTENTION"

type PipelineConfig struct {
	FPS                       float64 `mapstructure:"fps"`
	DebounceWindow            float64 `mapstructure:"debounce_window"`
	ReopenPolicy              string  `mapstructure:"reopen_policy"`
	WindowSeconds             float64 `mapstructure:"window_seconds"`
	MinGazeCalibrationSamples int     `mapstructure:"min_gaze_calibration_samples"`
}

type ClassifierConfig struct {
	BlinkRateThreshold    float64 `mapstructure:"blink_rate_threshold"`
	DurationLow           float64 `mapstructure:"duration_low"`
	DurationHigh          float64 `mapstructure:"duration_high"`
	ErraticRatioThreshold float64 `mapstructure:"erratic_ratio_threshold"`
	ErraticVelocityFactor float64 `mapstructure:"erratic_velocity_factor"`
	WordCounts            []int   `mapstructure:"word_counts"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type GPIOConfig struct {
	Chip     string        `mapstructure:"chip"`
	Pin      int           `mapstructure:"pin"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Config is the complete application configuration.
type Config struct {
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	GPIO       GPIOConfig       `mapstructure:"gpio"`

	HTTPAddr          string        `mapstructure:"http_addr"`
	PostgresURL       string        `mapstructure:"postgres_url"`
	RedisAddr         string        `mapstructure:"redis_addr"`
	RedisPassword     string        `mapstructure:"redis_password"`
	ThresholdTTL      time.Duration `mapstructure:"threshold_ttl"`
	ReorderTolerance  float64       `mapstructure:"reorder_tolerance"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	LogLevel          string        `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.fps", 30.0)
	v.SetDefault("pipeline.debounce_window", 0.05)
	v.SetDefault("pipeline.reopen_policy", string(logic.ReopenBoth))
	v.SetDefault("pipeline.window_seconds", 60.0)
	v.SetDefault("pipeline.min_gaze_calibration_samples", 3)

	v.SetDefault("classifier.blink_rate_threshold", 0.5)
	v.SetDefault("classifier.duration_low", 0.1)
	v.SetDefault("classifier.duration_high", 0.4)
	v.SetDefault("classifier.erratic_ratio_threshold", 0.3)
	v.SetDefault("classifier.erratic_velocity_factor", 1.5)
	v.SetDefault("classifier.word_counts", []int{})

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "attention-monitor")
	v.SetDefault("mqtt.topic_prefix", "attention")

	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.pin", -1)
	v.SetDefault("gpio.debounce", 50*time.Millisecond)

	v.SetDefault("http_addr", "")
	v.SetDefault("postgres_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("threshold_ttl", 24*time.Hour)
	v.SetDefault("reorder_tolerance", 0.5)
	v.SetDefault("heartbeat_interval", 15*time.Minute)
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. path may be empty; otherwise it names a
// YAML, JSON or TOML file whose values sit between the defaults and the
// environment.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// Validate rejects out-of-range parameters.
func (c Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.FPS <= 0:
		return invalid("pipeline.fps must be positive, got %v", p.FPS)
	case p.DebounceWindow < 0:
		return invalid("pipeline.debounce_window must not be negative, got %v", p.DebounceWindow)
	case !logic.ReopenPolicy(p.ReopenPolicy).Valid():
		return invalid("pipeline.reopen_policy must be both or either, got %q", p.ReopenPolicy)
	case p.WindowSeconds <= 0:
		return invalid("pipeline.window_seconds must be positive, got %v", p.WindowSeconds)
	case p.MinGazeCalibrationSamples < 1:
		return invalid("pipeline.min_gaze_calibration_samples must be at least 1, got %d", p.MinGazeCalibrationSamples)
	}

	k := c.Classifier
	switch {
	case k.BlinkRateThreshold < 0:
		return invalid("classifier.blink_rate_threshold must not be negative, got %v", k.BlinkRateThreshold)
	case k.DurationLow < 0 || k.DurationHigh <= k.DurationLow:
		return invalid("classifier duration bounds must satisfy 0 <= low < high, got %v/%v", k.DurationLow, k.DurationHigh)
	case k.ErraticRatioThreshold < 0 || k.ErraticRatioThreshold > 1:
		return invalid("classifier.erratic_ratio_threshold must be within [0, 1], got %v", k.ErraticRatioThreshold)
	case k.ErraticVelocityFactor <= 0:
		return invalid("classifier.erratic_velocity_factor must be positive, got %v", k.ErraticVelocityFactor)
	}
	for i, n := range k.WordCounts {
		if n < 0 {
			return invalid("classifier.word_counts[%d] is negative", i)
		}
	}

	if c.ReorderTolerance < 0 {
		return invalid("reorder_tolerance must not be negative, got %v", c.ReorderTolerance)
	}
	if c.GPIO.Debounce < 0 {
		return invalid("gpio.debounce must not be negative, got %v", c.GPIO.Debounce)
	}
	if c.HeartbeatInterval <= 0 {
		return invalid("heartbeat_interval must be positive, got %v", c.HeartbeatInterval)
	}
	return nil
}

// Session returns the pipeline parameters for a session.
func (c Config) Session() session.Config {
	return session.Config{
		Debounce:       c.Pipeline.DebounceWindow,
		ReopenPolicy:   logic.ReopenPolicy(c.Pipeline.ReopenPolicy),
		WindowSeconds:  c.Pipeline.WindowSeconds,
		MinGazeSamples: c.Pipeline.MinGazeCalibrationSamples,
		Classifier: attention.Config{
			BlinkRateThreshold:    c.Classifier.BlinkRateThreshold,
			DurationLow:           c.Classifier.DurationLow,
			DurationHigh:          c.Classifier.DurationHigh,
			ErraticRatioThreshold: c.Classifier.ErraticRatioThreshold,
			ErraticVelocityFactor: c.Classifier.ErraticVelocityFactor,
		},
		WordCounts: c.Classifier.WordCounts,
	}
}
