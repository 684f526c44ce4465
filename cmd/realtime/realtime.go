// Package realtime runs the leak-detection service: HTTP ingest, inference,
// alerting and the model lifecycle, all in one process.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/aquaguard/aquaguard-go/internal/alert"
	api "github.com/aquaguard/aquaguard-go/internal/api/v2"
	"github.com/aquaguard/aquaguard-go/internal/autotrain"
	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/dataset"
	"github.com/aquaguard/aquaguard-go/internal/datastore"
	"github.com/aquaguard/aquaguard-go/internal/inference"
	"github.com/aquaguard/aquaguard-go/internal/logging"
	"github.com/aquaguard/aquaguard-go/internal/mlmodel"
	"github.com/aquaguard/aquaguard-go/internal/notification"
	"github.com/aquaguard/aquaguard-go/internal/pipemap"
	"github.com/aquaguard/aquaguard-go/internal/processor"
	"github.com/aquaguard/aquaguard-go/internal/telemetry"
)

// Command creates the realtime subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "realtime",
		Short: "Run the leak-detection service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	logger := logging.ForService("realtime")

	if err := conf.ValidateSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The rotating file log captures HTTP access entries regardless of the
	// console level.
	var accessLog *slog.Logger
	if settings.Main.Log.Enabled {
		fileLog, closeLog, err := logging.NewFileLogger(
			settings.Main.Log.Path, "http",
			logging.LevelFromName(settings.Main.LogLevel),
			logging.FileLoggerOptions{
				MaxSizeMB:  settings.Main.Log.MaxSize,
				MaxBackups: settings.Main.Log.MaxBackups,
				MaxAgeDays: settings.Main.Log.MaxAge,
			})
		if err != nil {
			return fmt.Errorf("opening log file %s: %w", settings.Main.Log.Path, err)
		}
		defer func() {
			if err := closeLog(); err != nil {
				logger.Error("log file close failed", "error", err)
			}
		}()
		accessLog = fileLog
	}

	ds := datastore.New(settings)
	if ds == nil {
		return errors.New("no datastore enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Error("datastore close failed", "error", err)
		}
	}()

	key, err := settings.IngestKey()
	if err != nil {
		return err
	}
	bulkPath, err := settings.BulkCorpusPath()
	if err != nil {
		return err
	}
	validatedPath, err := settings.ValidatedCorpusPath()
	if err != nil {
		return err
	}
	mapPath, err := settings.StoragePath(conf.PipelineMapFile)
	if err != nil {
		return err
	}

	bulk := dataset.NewWriter(bulkPath)
	validated := dataset.NewWriter(validatedPath)
	bus := notification.NewBus()
	mapper := pipemap.New(mapPath, ds)
	bridge := alert.New(settings, ds, mapper, validated, bus)
	models := mlmodel.New(settings, ds)
	invoker := inference.New(settings, models)
	trigger := autotrain.New(settings, ds, bulk, models)
	proc := processor.New(settings, ds, telemetry.NewParser(key),
		invoker, bridge, mapper, bulk, validated, trigger, bus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.MQTT.Enabled {
		mqttBridge := notification.NewMQTTBridge(settings)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := mqttBridge.Connect(connectCtx)
		cancel()
		if err != nil {
			// The broker being down must not keep the detector offline.
			logger.Warn("mqtt connect failed, continuing without broadcasts", "error", err)
		} else {
			go mqttBridge.Attach(ctx, bus)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				"method", v.Method, "uri", v.URI, "status", v.Status)
			if accessLog != nil {
				accessLog.Info("http request",
					"method", v.Method, "uri", v.URI, "status", v.Status)
			}
			return nil
		},
	}))
	api.New(e, settings, ds, proc, bridge, models)

	addr := fmt.Sprintf("%s:%d", settings.Web.Host, settings.Web.Port)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
