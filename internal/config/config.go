package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	DBPath string

	Geocoding GeocodingConfig

	Nominatim  EndpointConfig
	Photon     EndpointConfig
	GoogleMaps KeyConfig
	Mapbox     KeyConfig
}

// GeocodingConfig tunes the cache and provider failover engine.
type GeocodingConfig struct {
	PrimaryProvider      string
	FallbackProvider     string
	ToleranceMeters      float64
	ChunkSize            int
	MaxConcurrency       int
	MinBoundingBoxMeters float64
	ProviderTimeout      time.Duration
	EmptyCacheSize       int
	EmptyCacheTTL        time.Duration
}

// EndpointConfig configures a keyless provider reached at a base URL.
type EndpointConfig struct {
	URL       string
	Enabled   bool
	UserAgent string
}

// KeyConfig configures a provider that requires an API key or token.
type KeyConfig struct {
	Key     string
	Enabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
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

	geo, err := loadGeocoding()
	if err != nil {
		return nil, err
	}

	nominatim, err := loadEndpoint("NOMINATIM", "https://nominatim.openstreetmap.org")
	if err != nil {
		return nil, err
	}
	photon, err := loadEndpoint("PHOTON", "https://photon.komoot.io")
	if err != nil {
		return nil, err
	}
	google, err := loadKey("GOOGLE_MAPS_API_KEY", "GOOGLE_MAPS_ENABLED")
	if err != nil {
		return nil, err
	}
	mapbox, err := loadKey("MAPBOX_TOKEN", "MAPBOX_ENABLED")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "geocode-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "geocode-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "geocode-cache"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		DBPath:             sharedcfg.EnvOrDefault("DB_PATH", "geocache.db"),

		Geocoding:  geo,
		Nominatim:  nominatim,
		Photon:     photon,
		GoogleMaps: google,
		Mapbox:     mapbox,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if cfg.GoogleMaps.Enabled && cfg.GoogleMaps.Key == "" {
		return nil, errors.New("GOOGLE_MAPS_ENABLED is true but GOOGLE_MAPS_API_KEY is not set")
	}
	if cfg.Mapbox.Enabled && cfg.Mapbox.Key == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func loadGeocoding() (GeocodingConfig, error) {
	primary := domain.NormalizeProviderName(sharedcfg.EnvOrDefault("GEOCODING_PRIMARY_PROVIDER", domain.ProviderNominatim))
	if !domain.IsKnownProvider(primary) {
		return GeocodingConfig{}, fmt.Errorf("invalid GEOCODING_PRIMARY_PROVIDER %q: %w", primary, domain.ErrUnknownProvider)
	}
	fallback := domain.NormalizeProviderName(os.Getenv("GEOCODING_FALLBACK_PROVIDER"))
	if fallback != "" && !domain.IsKnownProvider(fallback) {
		return GeocodingConfig{}, fmt.Errorf("invalid GEOCODING_FALLBACK_PROVIDER %q: %w", fallback, domain.ErrUnknownProvider)
	}

	tolerance, err := parseFloat("GEOCODING_TOLERANCE_METERS", 25, 0)
	if err != nil {
		return GeocodingConfig{}, err
	}
	minBox, err := parseFloat("GEOCODING_MIN_BBOX_METERS", 10, 0)
	if err != nil {
		return GeocodingConfig{}, err
	}
	chunkSize, err := parseInt("GEOCODING_CHUNK_SIZE", 10000, 1)
	if err != nil {
		return GeocodingConfig{}, err
	}
	concurrency, err := parseInt("GEOCODING_MAX_CONCURRENCY", 4, 1)
	if err != nil {
		return GeocodingConfig{}, err
	}
	emptyCacheSize, err := parseInt("GEOCODING_EMPTY_CACHE_SIZE", 1000, 0)
	if err != nil {
		return GeocodingConfig{}, err
	}
	timeout, err := parseDuration("GEOCODING_PROVIDER_TIMEOUT", 10*time.Second)
	if err != nil {
		return GeocodingConfig{}, err
	}
	emptyTTL, err := parseDuration("GEOCODING_EMPTY_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return GeocodingConfig{}, err
	}

	return GeocodingConfig{
		PrimaryProvider:      primary,
		FallbackProvider:     fallback,
		ToleranceMeters:      tolerance,
		ChunkSize:            chunkSize,
		MaxConcurrency:       concurrency,
		MinBoundingBoxMeters: minBox,
		ProviderTimeout:      timeout,
		EmptyCacheSize:       emptyCacheSize,
		EmptyCacheTTL:        emptyTTL,
	}, nil
}

func loadEndpoint(prefix, defaultURL string) (EndpointConfig, error) {
	enabled, err := parseBool(prefix+"_ENABLED", true)
	if err != nil {
		return EndpointConfig{}, err
	}
	u := strings.TrimRight(sharedcfg.EnvOrDefault(prefix+"_URL", defaultURL), "/")
	if enabled && u == "" {
		return EndpointConfig{}, fmt.Errorf("%s_URL is required when %s_ENABLED is true", prefix, prefix)
	}
	return EndpointConfig{
		URL:       u,
		Enabled:   enabled,
		UserAgent: sharedcfg.EnvOrDefault(prefix+"_USER_AGENT", "geocode-cache/1.0"),
	}, nil
}

// loadKey enables a keyed provider whenever its key is present unless the
// enabled flag says otherwise.
func loadKey(keyVar, enabledVar string) (KeyConfig, error) {
	key := os.Getenv(keyVar)
	enabled, err := parseBool(enabledVar, key != "")
	if err != nil {
		return KeyConfig{}, err
	}
	return KeyConfig{Key: key, Enabled: enabled}, nil
}

func parseBool(name string, def bool) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func parseInt(name string, def, minValue int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < minValue {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", name, minValue)
	}
	return v, nil
}

func parseFloat(name string, def, minValue float64) (float64, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < minValue {
		return 0, fmt.Errorf("invalid %s: must be a number >= %v", name, minValue)
	}
	return v, nil
}

func parseDuration(name string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", name)
	}
	return v, nil
}
