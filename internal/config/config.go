package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/lexiqai/live-captions/internal/delivery"
	"github.com/lexiqai/live-captions/internal/resilience"
	"github.com/lexiqai/live-captions/internal/results"
	"github.com/lexiqai/live-captions/internal/speech"
	"github.com/lexiqai/live-captions/internal/transport"
	"github.com/lexiqai/live-captions/internal/tts"
	"github.com/lexiqai/live-captions/internal/utterance"
)

// Run modes.
const (
	ModeCapture = "capture"
	ModeDisplay = "display"
	ModeBoth    = "both"
)

// Config holds all configuration for the captioner
type Config struct {
	// Caption service
	ServiceURL string `envconfig:"SERVICE_URL" required:"true"` // ws:// or wss:// endpoint
	AuthToken  string `envconfig:"AUTH_TOKEN" required:"true"`  // Sent as a Bearer token on the handshake

	HandshakeTimeout int `envconfig:"HANDSHAKE_TIMEOUT" default:"10000"` // milliseconds
	WriteTimeout     int `envconfig:"WRITE_TIMEOUT" default:"5000"`      // milliseconds

	Mode string `envconfig:"MODE" default:"both"` // capture, display or both

	// Capture
	SourceLanguage   string  `envconfig:"SOURCE_LANGUAGE" default:"en-US"`
	AudioDeviceID    string  `envconfig:"AUDIO_DEVICE_ID" default:""` // Empty selects the default input
	AudioSensitivity float64 `envconfig:"AUDIO_SENSITIVITY" default:"5.0"`
	SpeechThreshold  float64 `envconfig:"SPEECH_THRESHOLD" default:"0.05"` // Level above which a frame counts as speech
	SilenceFrames    int     `envconfig:"SILENCE_FRAMES" default:"2"`

	// Utterance timing, all in milliseconds
	SpeechEndTimeout    int  `envconfig:"SPEECH_END_TIMEOUT" default:"1000"`
	SilencePollInterval int  `envconfig:"SILENCE_POLL_INTERVAL" default:"100"`
	KeepAliveInterval   int  `envconfig:"KEEPALIVE_INTERVAL" default:"2000"`
	KeepAliveIdle       int  `envconfig:"KEEPALIVE_IDLE" default:"5000"`
	PreviousGrace       int  `envconfig:"PREVIOUS_GRACE" default:"5000"`
	FlushOnStop         bool `envconfig:"FLUSH_ON_STOP" default:"true"`

	// Delivery queue
	QueueTTL           int `envconfig:"QUEUE_TTL" default:"30000"`     // milliseconds
	QueueMaxRetries    int `envconfig:"QUEUE_MAX_RETRIES" default:"3"` // Send attempts before a message is dropped
	QueueRetryCooldown int `envconfig:"QUEUE_RETRY_COOLDOWN" default:"1000"`
	QueueFlushInterval int `envconfig:"QUEUE_FLUSH_INTERVAL" default:"1000"`

	// Display side
	DeliveryIDCapacity int `envconfig:"DELIVERY_ID_CAPACITY" default:"500"`
	ContentKeyCapacity int `envconfig:"CONTENT_KEY_CAPACITY" default:"200"`

	// Text-to-speech playback of translations
	TTSEnabled    bool   `envconfig:"TTS_ENABLED" default:"false"`
	TTSURL        string `envconfig:"TTS_URL" default:""`
	TTSSampleRate int    `envconfig:"TTS_SAMPLE_RATE" default:"24000"`
	TTSTimeout    int    `envconfig:"TTS_TIMEOUT" default:"10"` // seconds

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"0"`         // 0 keeps redialing until shutdown
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Serve /metrics, /health and /ready
	MetricsPort    string `envconfig:"METRICS_PORT" default:"9090"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("SERVICE_URL is required")
	}
	if !strings.HasPrefix(c.ServiceURL, "ws://") && !strings.HasPrefix(c.ServiceURL, "wss://") {
		return fmt.Errorf("SERVICE_URL must be a ws:// or wss:// URL, got %q", c.ServiceURL)
	}
	if c.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}

	switch c.Mode {
	case ModeCapture, ModeDisplay, ModeBoth:
	default:
		return fmt.Errorf("MODE must be one of capture, display, both; got %q", c.Mode)
	}

	if c.TTSEnabled && c.TTSURL == "" {
		return fmt.Errorf("TTS_URL is required when TTS_ENABLED is set")
	}
	if c.AudioSensitivity <= 0 {
		return fmt.Errorf("AUDIO_SENSITIVITY must be positive")
	}
	if c.QueueMaxRetries < 1 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must be at least 1")
	}

	return nil
}

// Captures reports whether this process records and streams audio.
func (c *Config) Captures() bool {
	return c.Mode == ModeCapture || c.Mode == ModeBoth
}

// Displays reports whether this process shows translated results.
func (c *Config) Displays() bool {
	return c.Mode == ModeDisplay || c.Mode == ModeBoth
}

// ReconnectConfig returns the transport redial policy.
func (c *Config) ReconnectConfig() *resilience.ReconnectConfig {
	rc := resilience.DefaultReconnectConfig()
	rc.MaxAttempts = c.ReconnectMaxAttempts
	rc.Backoff = ms(c.ReconnectBackoff)
	return rc
}

// RetryConfig returns the retry policy for TTS calls.
func (c *Config) RetryConfig() *resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = c.RetryMaxAttempts
	rc.InitialBackoff = ms(c.RetryInitialBackoff)
	return rc
}

// TransportConfig returns the WebSocket transport settings.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		URL:              c.ServiceURL,
		AuthToken:        c.AuthToken,
		HandshakeTimeout: ms(c.HandshakeTimeout),
		WriteTimeout:     ms(c.WriteTimeout),
		Reconnect:        c.ReconnectConfig(),
	}
}

// SessionOptions returns the speech session settings.
func (c *Config) SessionOptions() speech.Options {
	return speech.Options{
		SourceLanguage:       c.SourceLanguage,
		DeviceID:             c.AudioDeviceID,
		SpeechEndTimeout:     ms(c.SpeechEndTimeout),
		SilencePollInterval:  ms(c.SilencePollInterval),
		KeepAliveInterval:    ms(c.KeepAliveInterval),
		KeepAliveIdle:        ms(c.KeepAliveIdle),
		SpeechLevelThreshold: c.SpeechThreshold,
		SilenceFrames:        c.SilenceFrames,
		FlushOnStop:          c.FlushOnStop,
		Delivery: delivery.Config{
			TTL:           ms(c.QueueTTL),
			MaxRetries:    c.QueueMaxRetries,
			RetryCooldown: ms(c.QueueRetryCooldown),
			FlushInterval: ms(c.QueueFlushInterval),
		},
		Utterance: utterance.Config{
			PreviousGrace:    ms(c.PreviousGrace),
			FinalizedHistory: utterance.DefaultConfig().FinalizedHistory,
			NewID:            utterance.NewID,
		},
	}
}

// ReceiverOptions returns the display-side settings.
func (c *Config) ReceiverOptions() results.Options {
	opts := results.DefaultOptions()
	opts.DeliveryIDCapacity = c.DeliveryIDCapacity
	opts.ContentKeyCapacity = c.ContentKeyCapacity
	return opts
}

// TTSConfig returns the text-to-speech client settings. The TTS service
// shares the caption service's auth token.
func (c *Config) TTSConfig() tts.Config {
	return tts.Config{
		URL:                        c.TTSURL,
		AuthToken:                  c.AuthToken,
		Timeout:                    time.Duration(c.TTSTimeout) * time.Second,
		SampleRate:                 c.TTSSampleRate,
		CircuitBreakerMaxFailures:  c.CircuitBreakerMaxFailures,
		CircuitBreakerResetTimeout: time.Duration(c.CircuitBreakerResetTimeout) * time.Second,
		Retry:                      c.RetryConfig(),
	}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
