package tts

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lexiqai/live-captions/internal/audio"
	"github.com/lexiqai/live-captions/internal/observability"
	"github.com/lexiqai/live-captions/internal/resilience"
	"github.com/rs/zerolog"
)

const breakerName = "tts"

// Config holds TTS client settings.
type Config struct {
	URL        string
	AuthToken  string
	Timeout    time.Duration
	SampleRate int // Sample rate of the LINEAR16 audio the service returns

	CircuitBreakerMaxFailures  int
	CircuitBreakerResetTimeout time.Duration
	Retry                      *resilience.RetryConfig
}

// Client calls POST {URL}/tts. Calls are wrapped in a circuit breaker and
// retried on transient failures.
type Client struct {
	cfg     Config
	http    *resty.Client
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewClient creates a TTS client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.CircuitBreakerMaxFailures <= 0 {
		cfg.CircuitBreakerMaxFailures = 5
	}
	if cfg.CircuitBreakerResetTimeout <= 0 {
		cfg.CircuitBreakerResetTimeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/octet-stream")
	if cfg.AuthToken != "" {
		httpClient.SetAuthToken(cfg.AuthToken)
	}

	logger = logger.With().Str("component", "tts").Logger()
	breaker := resilience.NewCircuitBreaker(breakerName, cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout).
		WithLogger(logger)

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		breaker: breaker,
		logger:  logger,
	}
}

// Synthesize requests speech for text in languageCode.
func (c *Client) Synthesize(ctx context.Context, text, languageCode string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	start := time.Now()
	var body []byte

	err := c.breaker.Call(func() error {
		return resilience.RetryContext(ctx, func() error {
			resp, err := c.http.R().
				SetContext(ctx).
				SetBody(Request{Text: text, LanguageCode: languageCode}).
				Post("/tts")
			if err != nil {
				return resilience.NewRetryableError(fmt.Errorf("tts request failed: %w", err))
			}

			if resp.IsError() {
				statusErr := &StatusError{Code: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
				if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
					return resilience.NewRetryableError(statusErr)
				}
				return statusErr
			}

			body = resp.Body()
			return nil
		}, c.cfg.Retry, resilience.IsRetryableNetworkError)
	})

	if err != nil {
		observability.RecordTTS(time.Since(start), false, 0)
		c.logger.Warn().Err(err).Str("language", languageCode).Msg("TTS synthesis failed")
		return nil, err
	}

	pcm, err := audio.DecodePCM16(body)
	if err != nil {
		observability.RecordTTS(time.Since(start), false, len(body))
		return nil, fmt.Errorf("tts: invalid audio payload: %w", err)
	}

	observability.RecordTTS(time.Since(start), true, len(body))
	c.logger.Debug().
		Int("samples", len(pcm)).
		Dur("latency", time.Since(start)).
		Str("language", languageCode).
		Msg("TTS synthesis complete")

	return &Audio{PCM: pcm, SampleRate: c.cfg.SampleRate}, nil
}

// BreakerState exposes the circuit breaker state for readiness checks.
func (c *Client) BreakerState() resilience.CircuitState {
	return c.breaker.GetState()
}
