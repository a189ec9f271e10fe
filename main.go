package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/logwire/cmd"
	"github.com/smazurov/logwire/internal/api"
	"github.com/smazurov/logwire/internal/config"
	"github.com/smazurov/logwire/internal/events"
	"github.com/smazurov/logwire/internal/logconfig"
	"github.com/smazurov/logwire/internal/logging"
	"github.com/smazurov/logwire/internal/metrics"
	"github.com/smazurov/logwire/internal/metrics/exporters"
	"github.com/smazurov/logwire/internal/systemd"
	"github.com/smazurov/logwire/internal/version"
)

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Flags set on the command line win over env and the settings file
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load settings", "error", loadErr)
		}

		// Every slog call in the process goes through the managed state
		logging.InstallDefault()
		state := logging.Default()
		logger := logging.GetLogger("main")

		eventBus := events.New()
		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

		loaderOpts := append(opts.LoaderOptions(),
			logconfig.WithObserver(events.NewObserver(eventBus)),
			logconfig.WithObserver(notifier),
			logconfig.WithLogger(logging.GetLogger("logconfig")),
		)
		callbacks := []logging.LogCallback{events.LogForwarder(eventBus)}

		var promHandler http.Handler
		var statsPublisher *exporters.StatsPublisher
		if opts.MetricsEnabled {
			loaderOpts = append(loaderOpts, logconfig.WithObserver(metrics.NewObserver(state)))
			callbacks = append(callbacks, metrics.RecordCallback())
			promHandler = exporters.HTTPHandler(logging.GetLogger("metrics"))
			statsPublisher = exporters.NewStatsPublisher(eventBus, time.Second)
		}
		state.SetEntryCallback(logging.Callbacks(callbacks...))
		loader := logconfig.NewLoader(state, loaderOpts...)

		format, formatErr := opts.DocumentFormat()
		if formatErr != nil {
			logger.Warn("Ignoring invalid logging format, inferring it instead", "format", opts.LoggingFormat, "error", formatErr)
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Loader:            loader,
			EventBus:          eventBus,
			ConfigPath:        opts.LoggingFile,
			ConfigFormat:      format,
			PrometheusHandler: promHandler,
		})

		var watcher *config.Watcher[*logconfig.Result]

		hooks.OnStart(func() {
			if opts.LoggingFile != "" {
				if _, loadErr := loader.LoadFile(opts.LoggingFile, format); loadErr != nil {
					logger.Error("Failed to apply logging configuration", "path", opts.LoggingFile, "error", loadErr)
				}

				if opts.WatchEnabled {
					watcher = config.NewWatcher(
						opts.LoggingFile,
						func(path string) (*logconfig.Result, error) {
							notifier.Reloading()
							defer notifier.Ready()
							return loader.LoadFile(path, format)
						},
						logging.GetLogger("watcher"),
						config.WithDebounce[*logconfig.Result](opts.Debounce()),
					)
					watcher.OnReload(func(res *logconfig.Result) {
						logger.Info("Logging configuration reloaded", "sinks", len(res.SinkIDs), "generation", res.Generation)
					})
					if startErr := watcher.Start(); startErr != nil {
						logger.Warn("Failed to start config watcher, hot-reload disabled", "error", startErr)
						watcher = nil
					}
				}
			}

			if statsPublisher != nil {
				statsPublisher.Start(context.Background())
			}

			notifier.StartWatchdog(context.Background())
			notifier.Ready()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			notifier.Stop()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
			if statsPublisher != nil {
				statsPublisher.Stop()
			}
			// Flush enqueued sinks and close files
			state.RemoveAll()
		})
	})

	cli.Root().Use = "logwire"
	cli.Root().Short = "Declarative logging configuration daemon and tools"
	cli.Root().Version = version.Get().Summary()

	cli.Root().AddCommand(
		cmd.CreateAboutCmd(),
		cmd.CreateValidateCmd(),
		cmd.CreateTestCmd(),
		cmd.CreateConvertCmd(),
	)

	cli.Run()
}
