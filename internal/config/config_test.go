package config

import (
	"os"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SERVICE_URL", "wss://captions.example.com/stream")
	t.Setenv("AUTH_TOKEN", "test-token")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ServiceURL != "wss://captions.example.com/stream" {
		t.Errorf("Expected ServiceURL 'wss://captions.example.com/stream', got '%s'", cfg.ServiceURL)
	}

	if cfg.AuthToken != "test-token" {
		t.Errorf("Expected AuthToken 'test-token', got '%s'", cfg.AuthToken)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// Clear environment variables
	os.Unsetenv("SERVICE_URL")
	os.Unsetenv("AUTH_TOKEN")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Mode != ModeBoth {
		t.Errorf("Expected default Mode 'both', got '%s'", cfg.Mode)
	}

	if cfg.SourceLanguage != "en-US" {
		t.Errorf("Expected default SourceLanguage 'en-US', got '%s'", cfg.SourceLanguage)
	}

	if cfg.AudioSensitivity != 5.0 {
		t.Errorf("Expected default AudioSensitivity 5.0, got %f", cfg.AudioSensitivity)
	}

	if cfg.SpeechEndTimeout != 1000 {
		t.Errorf("Expected default SpeechEndTimeout 1000, got %d", cfg.SpeechEndTimeout)
	}

	if cfg.QueueTTL != 30000 {
		t.Errorf("Expected default QueueTTL 30000, got %d", cfg.QueueTTL)
	}

	if cfg.QueueMaxRetries != 3 {
		t.Errorf("Expected default QueueMaxRetries 3, got %d", cfg.QueueMaxRetries)
	}

	if cfg.DeliveryIDCapacity != 500 {
		t.Errorf("Expected default DeliveryIDCapacity 500, got %d", cfg.DeliveryIDCapacity)
	}

	if cfg.ContentKeyCapacity != 200 {
		t.Errorf("Expected default ContentKeyCapacity 200, got %d", cfg.ContentKeyCapacity)
	}

	if cfg.TTSEnabled {
		t.Error("Expected default TTSEnabled false, got true")
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("MODE", "display")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Captures() {
		t.Error("Expected display mode not to capture")
	}
	if !cfg.Displays() {
		t.Error("Expected display mode to display")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ServiceURL:       "ws://localhost:8080/stream",
			AuthToken:        "token",
			Mode:             ModeBoth,
			AudioSensitivity: 5,
			QueueMaxRetries:  3,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing url", func(c *Config) { c.ServiceURL = "" }, true},
		{"http url", func(c *Config) { c.ServiceURL = "http://localhost" }, true},
		{"missing token", func(c *Config) { c.AuthToken = "" }, true},
		{"bad mode", func(c *Config) { c.Mode = "record" }, true},
		{"tts without url", func(c *Config) { c.TTSEnabled = true }, true},
		{"tts with url", func(c *Config) { c.TTSEnabled = true; c.TTSURL = "http://tts" }, false},
		{"zero sensitivity", func(c *Config) { c.AudioSensitivity = 0 }, true},
		{"zero retries", func(c *Config) { c.QueueMaxRetries = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check resilience defaults
	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}

	if cfg.ReconnectMaxAttempts != 0 {
		t.Errorf("Expected default ReconnectMaxAttempts 0, got %d", cfg.ReconnectMaxAttempts)
	}

	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	setRequired(t)
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}

	if cfg.MetricsPort != "9090" {
		t.Errorf("Expected default MetricsPort '9090', got '%s'", cfg.MetricsPort)
	}
}

func TestConfig_Conversions(t *testing.T) {
	setRequired(t)
	t.Setenv("SPEECH_END_TIMEOUT", "1500")
	t.Setenv("QUEUE_TTL", "20000")
	t.Setenv("PREVIOUS_GRACE", "3000")
	t.Setenv("TTS_URL", "http://tts.local")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	opts := cfg.SessionOptions()
	if opts.SpeechEndTimeout != 1500*time.Millisecond {
		t.Errorf("Expected SpeechEndTimeout 1.5s, got %v", opts.SpeechEndTimeout)
	}
	if opts.Delivery.TTL != 20*time.Second {
		t.Errorf("Expected delivery TTL 20s, got %v", opts.Delivery.TTL)
	}
	if opts.Utterance.PreviousGrace != 3*time.Second {
		t.Errorf("Expected PreviousGrace 3s, got %v", opts.Utterance.PreviousGrace)
	}
	if opts.Utterance.NewID == nil {
		t.Error("Expected an utterance id generator")
	}

	tc := cfg.TransportConfig()
	if tc.AuthToken != "test-token" || tc.Reconnect.MaxAttempts != 0 {
		t.Errorf("Unexpected transport config: %+v", tc)
	}

	ttsCfg := cfg.TTSConfig()
	if ttsCfg.URL != "http://tts.local" || ttsCfg.SampleRate != 24000 {
		t.Errorf("Unexpected TTS config: %+v", ttsCfg)
	}
	if ttsCfg.CircuitBreakerResetTimeout != 30*time.Second {
		t.Errorf("Expected breaker reset 30s, got %v", ttsCfg.CircuitBreakerResetTimeout)
	}

	ro := cfg.ReceiverOptions()
	if ro.DeliveryIDCapacity != 500 || ro.ContentKeyCapacity != 200 {
		t.Errorf("Unexpected receiver options: %+v", ro)
	}
}
