package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lexiqai/live-captions/internal/audio"
	"github.com/lexiqai/live-captions/internal/config"
	"github.com/lexiqai/live-captions/internal/observability"
	"github.com/lexiqai/live-captions/internal/protocol"
	"github.com/lexiqai/live-captions/internal/resilience"
	"github.com/lexiqai/live-captions/internal/results"
	"github.com/lexiqai/live-captions/internal/scheduler"
	"github.com/lexiqai/live-captions/internal/speech"
	"github.com/lexiqai/live-captions/internal/transport"
	"github.com/lexiqai/live-captions/internal/tts"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const stopTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "devices" {
		// Listing devices needs no service settings, so only logging is configured.
		observability.InitLogger(config.GetEnv("LOG_LEVEL", "warn"), config.GetEnv("LOG_PRETTY", "false") == "true")
		if err := listDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	// Every line from this run shares one correlation id.
	logger := observability.WithCorrelationID(observability.NewCorrelationID())

	logger.Info().
		Str("mode", cfg.Mode).
		Str("service_url", cfg.ServiceURL).
		Str("source_language", cfg.SourceLanguage).
		Bool("tts_enabled", cfg.TTSEnabled).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Live captions starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Captioner exited with error")
	}

	logger.Info().Msg("Captioner exited gracefully")
}

// run wires the pipeline and blocks until ctx is cancelled or a component
// fails. The scheduler and transport outlive the session so stopStreaming
// can still be sent during shutdown.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	infraCtx, cancelInfra := context.WithCancel(context.Background())
	defer cancelInfra()

	loop := scheduler.NewLoop(256, logger)
	ws := transport.NewWebSocket(cfg.TransportConfig(), logger)

	var session *speech.Session
	if cfg.Captures() {
		mic := audio.NewMicSource(cfg.AudioSensitivity, logger)
		session = speech.NewSession(mic, ws, loop, cfg.SessionOptions(), captionCallbacks(logger), logger)
	}

	var ttsClient *tts.Client
	var receiver *results.Receiver
	if cfg.Displays() {
		var speaker results.Speaker
		if cfg.TTSEnabled {
			ttsClient = tts.NewClient(cfg.TTSConfig(), logger)
			speaker = tts.NewAnnouncer(ttsClient, audio.NewPlayer(cfg.TTSSampleRate), logger)
		}
		receiver = results.NewReceiver(ws, loop, cfg.ReceiverOptions(), printTranslation, speaker, logger)
	}

	g, gctx := errgroup.WithContext(infraCtx)

	g.Go(func() error {
		if err := loop.Run(infraCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return ws.Run(gctx)
	})

	if receiver != nil {
		g.Go(func() error {
			return receiver.Run(gctx)
		})
	}

	if cfg.MetricsEnabled {
		server := newMetricsServer(cfg, ws, session, ttsClient)
		g.Go(func() error {
			logger.Info().Str("port", cfg.MetricsPort).Msg("Metrics server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancelInfra()

		if session != nil {
			if err := session.Start(gctx); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down...")
		case <-gctx.Done():
		}

		if session != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := session.Stop(stopCtx); err != nil {
				logger.Warn().Err(err).Msg("Session did not stop cleanly")
			}
		}
		return nil
	})

	return g.Wait()
}

func newMetricsServer(cfg *config.Config, ws *transport.WebSocket, session *speech.Session, ttsClient *tts.Client) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	checks := map[string]observability.HealthCheckFunc{
		"transport": func(ctx context.Context) (bool, error) {
			if !ws.IsConnected() {
				return false, transport.ErrNotConnected
			}
			return true, nil
		},
	}
	if session != nil {
		checks["microphone"] = func(ctx context.Context) (bool, error) {
			if !session.Recording() {
				return false, fmt.Errorf("microphone is not recording")
			}
			return true, nil
		}
	}
	if ttsClient != nil {
		checks["tts"] = func(ctx context.Context) (bool, error) {
			if ttsClient.BreakerState() == resilience.StateOpen {
				return false, resilience.ErrCircuitOpen
			}
			return true, nil
		}
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Create HTTP server with timeouts
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.MetricsPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func captionCallbacks(logger zerolog.Logger) speech.Callbacks {
	return speech.Callbacks{
		OnStart: func(utteranceID string) {
			logger.Debug().Str("utterance_id", utteranceID).Msg("Utterance started")
		},
		OnInterim: func(t speech.Transcript) {
			logger.Debug().Str("utterance_id", t.UtteranceID).Str("text", t.Text).Msg("Interim transcript")
		},
		OnFinal: func(t speech.Transcript) {
			source := "service"
			if t.Local {
				source = "silence"
			}
			fmt.Fprintf(os.Stdout, "[%s] %s\n", t.UtteranceID, t.Text)
			logger.Info().
				Str("utterance_id", t.UtteranceID).
				Str("source", source).
				Float64("confidence", t.Confidence).
				Msg("Final transcript")
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("Session error")
		},
		OnEnd: func() {
			logger.Info().Msg("Session ended")
		},
	}
}

func printTranslation(res protocol.TranslationResult) {
	fmt.Fprintf(os.Stdout, "[%s %s->%s] %s\n", res.UtteranceID, res.SourceLanguage, res.TargetLanguage, res.TranslatedText)
}

func listDevices() error {
	devices, err := audio.ListDevices()
	if err != nil {
		return err
	}
	logger := observability.GetLogger()
	logger.Debug().Int("count", len(devices)).Msg("Enumerated input devices")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\n", d.ID, d.Label)
	}
	return w.Flush()
}
