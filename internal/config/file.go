package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML document named by AMBIANCE_CONFIG. Every
// field maps to one environment variable.
type fileConfig struct {
	HTTPAddr  string `yaml:"httpAddr"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	Location struct {
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
		Timezone  string   `yaml:"timezone"`
	} `yaml:"location"`

	Weather struct {
		BaseURL      string `yaml:"baseUrl"`
		Timeout      string `yaml:"timeout"`
		PollInterval string `yaml:"pollInterval"`
		MinSpacing   string `yaml:"minSpacing"`
		Debounce     string `yaml:"debounce"`
		CacheSize    int    `yaml:"cacheSize"`
		CacheTTL     string `yaml:"cacheTtl"`
		EventAt      string `yaml:"eventAt"`
	} `yaml:"weather"`

	Ambiance struct {
		FrameRate     int    `yaml:"frameRate"`
		BurstDuration string `yaml:"burstDuration"`
		FadeDuration  string `yaml:"fadeDuration"`
		Enabled       *bool  `yaml:"enabled"`
		ReduceMotion  *bool  `yaml:"reduceMotion"`
		PowerSource   string `yaml:"powerSource"`
		Renderer      string `yaml:"renderer"`
		Audio         *bool  `yaml:"audio"`
	} `yaml:"ambiance"`

	Kafka struct {
		Enabled *bool    `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Valkey struct {
		Addr   string `yaml:"addr"`
		Prefix string `yaml:"prefix"`
	} `yaml:"valkey"`

	MQTT struct {
		Broker      string `yaml:"broker"`
		TopicPrefix string `yaml:"topicPrefix"`
		ClientID    string `yaml:"clientId"`
	} `yaml:"mqtt"`
}

// loadFileDefaults reads path and flattens it into environment-variable keys.
// An empty path yields no defaults.
func loadFileDefaults(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read AMBIANCE_CONFIG: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse AMBIANCE_CONFIG %s: %w", path, err)
	}
	return fc.defaults(), nil
}

func (fc fileConfig) defaults() map[string]string {
	d := make(map[string]string)
	set := func(key, v string) {
		if v != "" {
			d[key] = v
		}
	}
	setFloat := func(key string, v *float64) {
		if v != nil {
			d[key] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
	}
	setBool := func(key string, v *bool) {
		if v != nil {
			d[key] = strconv.FormatBool(*v)
		}
	}
	setInt := func(key string, v int) {
		if v != 0 {
			d[key] = strconv.Itoa(v)
		}
	}

	set("HTTP_ADDR", fc.HTTPAddr)
	set("LOG_LEVEL", fc.LogLevel)
	set("LOG_FORMAT", fc.LogFormat)

	setFloat("LATITUDE", fc.Location.Latitude)
	setFloat("LONGITUDE", fc.Location.Longitude)
	set("TIMEZONE", fc.Location.Timezone)

	set("WEATHER_BASE_URL", fc.Weather.BaseURL)
	set("WEATHER_TIMEOUT", fc.Weather.Timeout)
	set("WEATHER_POLL_INTERVAL", fc.Weather.PollInterval)
	set("WEATHER_MIN_SPACING", fc.Weather.MinSpacing)
	set("WEATHER_DEBOUNCE", fc.Weather.Debounce)
	setInt("WEATHER_CACHE_SIZE", fc.Weather.CacheSize)
	set("WEATHER_CACHE_TTL", fc.Weather.CacheTTL)
	set("EVENT_AT", fc.Weather.EventAt)

	setInt("FRAME_RATE", fc.Ambiance.FrameRate)
	set("BURST_DURATION", fc.Ambiance.BurstDuration)
	set("FADE_DURATION", fc.Ambiance.FadeDuration)
	setBool("AMBIANCE_ENABLED", fc.Ambiance.Enabled)
	setBool("REDUCE_MOTION", fc.Ambiance.ReduceMotion)
	set("POWER_SOURCE", fc.Ambiance.PowerSource)
	set("RENDERER", fc.Ambiance.Renderer)
	setBool("AUDIO_ENABLED", fc.Ambiance.Audio)

	setBool("KAFKA_ENABLED", fc.Kafka.Enabled)
	if len(fc.Kafka.Brokers) > 0 {
		d["KAFKA_BROKERS"] = strings.Join(fc.Kafka.Brokers, ",")
	}
	set("KAFKA_TOPIC", fc.Kafka.Topic)

	set("VALKEY_ADDR", fc.Valkey.Addr)
	set("VALKEY_PREFIX", fc.Valkey.Prefix)

	set("MQTT_BROKER", fc.MQTT.Broker)
	set("MQTT_TOPIC_PREFIX", fc.MQTT.TopicPrefix)
	set("MQTT_CLIENT_ID", fc.MQTT.ClientID)
	return d
}
