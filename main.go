package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/rmayorov/camstreamer/cmd"
	"github.com/rmayorov/camstreamer/internal/api"
	"github.com/rmayorov/camstreamer/internal/camera"
	"github.com/rmayorov/camstreamer/internal/config"
	"github.com/rmayorov/camstreamer/internal/events"
	"github.com/rmayorov/camstreamer/internal/logging"
	"github.com/rmayorov/camstreamer/internal/pipeline"
	"github.com/rmayorov/camstreamer/internal/status"
	"github.com/rmayorov/camstreamer/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8080" toml:"server.port" env:"SERVER_PORT"`

	// Stream settings
	StreamConfigFile string `help:"Stream parameters file" default:"stream.toml" toml:"stream.config_file" env:"STREAM_CONFIG_FILE"`
	WatchConfig      bool   `help:"Restart the pipeline when the stream config file changes" default:"true" toml:"stream.watch" env:"STREAM_WATCH"`

	// Pipeline settings
	AutoStart   bool `help:"Start streaming on launch" default:"true" toml:"pipeline.auto_start" env:"PIPELINE_AUTO_START"`
	TestPattern bool `help:"Use the synthetic test pattern source instead of a camera" default:"false" toml:"pipeline.test_pattern" env:"PIPELINE_TEST_PATTERN"`

	// Retry settings
	RetryInitialDelay string `help:"Initial restart backoff delay" default:"1s" toml:"retry.initial_delay" env:"RETRY_INITIAL_DELAY"`
	RetryMaxDelay     string `help:"Backoff delay cap" default:"30s" toml:"retry.max_delay" env:"RETRY_MAX_DELAY"`
	RetryMaxAttempts  int    `help:"Restart attempts before staying failed" default:"5" toml:"retry.max_attempts" env:"RETRY_MAX_ATTEMPTS"`
	RetryHealthyAfter string `help:"Run duration that resets the attempt counter" default:"1m" toml:"retry.healthy_after" env:"RETRY_HEALTHY_AFTER"`

	// Status settings
	StatusFile     string `help:"Status output file polled by the dashboard" default:"status.json" toml:"status.file" env:"STATUS_FILE"`
	StatusInterval string `help:"Periodic status report interval" default:"5s" toml:"status.interval" env:"STATUS_INTERVAL"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingCamera   string `help:"Camera logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingFFmpeg   string `help:"Encoder subprocess logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingStatus   string `help:"Status reporter logging level" default:"info" toml:"logging.status" env:"LOGGING_STATUS"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func backoffFromOptions(opts *Options) pipeline.Backoff {
	b := pipeline.DefaultBackoff()
	b.Initial = parseDuration(opts.RetryInitialDelay, b.Initial)
	b.Max = parseDuration(opts.RetryMaxDelay, b.Max)
	b.HealthyAfter = parseDuration(opts.RetryHealthyAfter, b.HealthyAfter)
	if opts.RetryMaxAttempts >= 0 {
		b.MaxAttempts = opts.RetryMaxAttempts
	}
	return b
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadOptions(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"pipeline": opts.LoggingPipeline,
				"camera":   opts.LoggingCamera,
				"ffmpeg":   opts.LoggingFFmpeg,
				"status":   opts.LoggingStatus,
				"api":      opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")
		logger.Info("Starting camstreamer", "version", version.String(), "commit", version.GitCommit)

		streamCfg, err := config.LoadStream(opts.StreamConfigFile)
		if err != nil {
			logger.Error("Invalid stream configuration", "path", opts.StreamConfigFile, "error", err)
			os.Exit(1)
		}
		logger.Info("Loaded stream configuration", "config", streamCfg)

		bus := events.New()

		controller := pipeline.New(streamCfg, bus, logging.GetLogger("pipeline"))
		controller.SetBackoff(backoffFromOptions(opts))
		if opts.TestPattern {
			logger.Info("Test pattern source enabled")
			controller.SetFactories(func(cfg *config.Stream) camera.Source {
				return camera.NewTestPattern(cfg)
			}, nil)
		}

		reporter := status.NewReporter(controller, bus, logging.GetLogger("status"),
			status.NewFileSink(opts.StatusFile))
		reporter.SetInterval(parseDuration(opts.StatusInterval, 5*time.Second))

		server := api.NewServer(controller, logging.GetLogger("api"))

		var watcher *config.Watcher
		if opts.WatchConfig {
			watcher = config.NewWatcher(opts.StreamConfigFile, logging.GetLogger("config"))
			watcher.OnReload(func(cfg *config.Stream) {
				logger.Info("Stream configuration changed, restarting pipeline")
				controller.Stop()
				if updateErr := controller.UpdateConfig(cfg); updateErr != nil {
					logger.Error("Failed to apply new configuration", "error", updateErr)
					return
				}
				if startErr := controller.Start(); startErr != nil {
					logger.Error("Failed to restart pipeline", "error", startErr)
				}
			})
		}

		hooks.OnStart(func() {
			reporter.Start()

			if watcher != nil {
				if watchErr := watcher.Start(); watchErr != nil {
					logger.Warn("Config watcher unavailable", "error", watchErr)
				}
			}

			if opts.AutoStart {
				if startErr := controller.Start(); startErr != nil {
					logger.Error("Failed to start pipeline", "error", startErr)
					os.Exit(1)
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Error("Error stopping config watcher", "error", stopErr)
				}
			}
			controller.Stop()
			reporter.Stop()
		})
	})

	cli.Root().AddCommand(cmd.CreateValidateCmd())

	cli.Run()
}
