package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings. Values come from environment variables;
// when AMBIANCE_CONFIG names a YAML file its values replace the built-in
// defaults, and the environment still wins.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Location the weather is fetched for.
	Latitude  float64
	Longitude float64
	Location  *time.Location

	// Weather refresh.
	WeatherBaseURL      string
	WeatherTimeout      time.Duration
	WeatherPollInterval time.Duration
	WeatherMinSpacing   time.Duration
	WeatherDebounce     time.Duration
	WeatherCacheSize    int
	WeatherCacheTTL     time.Duration
	EventAt             time.Time // zero when no scheduled event overrides current weather

	// Frame loop and gating.
	FrameRate       int
	BurstDuration   time.Duration
	FadeDuration    time.Duration
	AmbianceEnabled bool
	ReduceMotion    bool
	PowerSource     string
	Renderer        string
	AudioEnabled    bool

	// Event publishing.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaTopic         string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Cinematic ledger persistence. Empty address keeps the ledger in memory.
	ValkeyAddr   string
	ValkeyPrefix string

	// Host surface signals. Empty broker disables the subscriber.
	MQTTBroker      string
	MQTTTopicPrefix string
	MQTTClientID    string
}

// Renderers accepted by RENDERER.
const (
	RendererTerminal = "terminal"
	RendererNone     = "none"
)

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	defaults, err := loadFileDefaults(os.Getenv("AMBIANCE_CONFIG"))
	if err != nil {
		return nil, err
	}
	e := env{defaults: defaults}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:           e.get("HTTP_ADDR", ":8080"),
		LogLevel:           e.get("LOG_LEVEL", "info"),
		LogFormat:          e.get("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		WeatherBaseURL:     strings.TrimRight(e.get("WEATHER_BASE_URL", "https://api.open-meteo.com"), "/"),
		PowerSource:        e.get("POWER_SOURCE", "sysfs"),
		Renderer:           strings.ToLower(e.get("RENDERER", RendererTerminal)),
		KafkaBrokers:       sharedcfg.ParseBrokers(e.get("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         e.get("KAFKA_TOPIC", "ambiance-events"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		ValkeyAddr:         e.get("VALKEY_ADDR", ""),
		ValkeyPrefix:       e.get("VALKEY_PREFIX", "ambiance"),
		MQTTBroker:         e.get("MQTT_BROKER", ""),
		MQTTTopicPrefix:    strings.TrimRight(e.get("MQTT_TOPIC_PREFIX", "ambiance"), "/"),
		MQTTClientID:       e.get("MQTT_CLIENT_ID", "storm-ambiance"),
	}

	p := parser{env: e}
	cfg.Latitude = p.float("LATITUDE", "40.7128")
	cfg.Longitude = p.float("LONGITUDE", "-74.0060")
	cfg.Location = p.location("TIMEZONE", "Local")
	cfg.WeatherTimeout = p.positiveDuration("WEATHER_TIMEOUT", "5s")
	cfg.WeatherPollInterval = p.positiveDuration("WEATHER_POLL_INTERVAL", "10m")
	cfg.WeatherMinSpacing = p.positiveDuration("WEATHER_MIN_SPACING", "1m")
	cfg.WeatherDebounce = p.duration("WEATHER_DEBOUNCE", "2s")
	cfg.WeatherCacheSize = p.positiveInt("WEATHER_CACHE_SIZE", "256")
	cfg.WeatherCacheTTL = p.positiveDuration("WEATHER_CACHE_TTL", "15m")
	cfg.EventAt = p.timestamp("EVENT_AT")
	cfg.FrameRate = p.positiveInt("FRAME_RATE", "30")
	cfg.BurstDuration = p.positiveDuration("BURST_DURATION", "20s")
	cfg.FadeDuration = p.duration("FADE_DURATION", "600ms")
	cfg.AmbianceEnabled = p.bool("AMBIANCE_ENABLED", "true")
	cfg.ReduceMotion = p.bool("REDUCE_MOTION", "false")
	cfg.AudioEnabled = p.bool("AUDIO_ENABLED", "false")
	cfg.KafkaEnabled = p.bool("KAFKA_ENABLED", "false")
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return errors.New("LATITUDE must be between -90 and 90")
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return errors.New("LONGITUDE must be between -180 and 180")
	}
	if c.FrameRate > 240 {
		return errors.New("FRAME_RATE must be at most 240")
	}
	if c.Renderer != RendererTerminal && c.Renderer != RendererNone {
		return fmt.Errorf("RENDERER must be %q or %q", RendererTerminal, RendererNone)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.KafkaEnabled && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}
	return nil
}

// FrameInterval is the time between frame loop ticks.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

// env resolves a key from the environment, then the file defaults, then the
// built-in default.
type env struct {
	defaults map[string]string
}

func (e env) get(key, fallback string) string {
	if v, ok := e.defaults[key]; ok {
		fallback = v
	}
	return sharedcfg.EnvOrDefault(key, fallback)
}

// parser records the first invalid value so Load can report it once.
type parser struct {
	env env
	err error
}

func (p *parser) fail(key string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s", key)
	}
}

func (p *parser) duration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(p.env.get(key, fallback))
	if err != nil || d < 0 {
		p.fail(key)
		return 0
	}
	return d
}

func (p *parser) positiveDuration(key, fallback string) time.Duration {
	d := p.duration(key, fallback)
	if d <= 0 {
		p.fail(key)
	}
	return d
}

func (p *parser) positiveInt(key, fallback string) int {
	n, err := strconv.Atoi(p.env.get(key, fallback))
	if err != nil || n <= 0 {
		p.fail(key)
		return 0
	}
	return n
}

func (p *parser) float(key, fallback string) float64 {
	f, err := strconv.ParseFloat(p.env.get(key, fallback), 64)
	if err != nil {
		p.fail(key)
		return 0
	}
	return f
}

func (p *parser) bool(key, fallback string) bool {
	b, err := strconv.ParseBool(p.env.get(key, fallback))
	if err != nil {
		p.fail(key)
		return false
	}
	return b
}

func (p *parser) location(key, fallback string) *time.Location {
	loc, err := time.LoadLocation(p.env.get(key, fallback))
	if err != nil {
		p.fail(key)
		return nil
	}
	return loc
}

func (p *parser) timestamp(key string) time.Time {
	s := p.env.get(key, "")
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		p.fail(key)
		return time.Time{}
	}
	return t
}
