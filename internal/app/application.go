// Package app wires the pipeline's components into runnable applications
// using uber-fx. Each entrypoint builds one fx application, runs its job in a
// lifecycle hook, and shuts the container down when the job finishes.
package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/weatherlake/internal/config"
	"github.com/tigerroll/weatherlake/internal/ingest"
	"github.com/tigerroll/weatherlake/internal/metrics"
	"github.com/tigerroll/weatherlake/internal/planner"
	"github.com/tigerroll/weatherlake/internal/storage"
	"github.com/tigerroll/weatherlake/internal/storage/gcs"
	"github.com/tigerroll/weatherlake/internal/storage/local"
	"github.com/tigerroll/weatherlake/internal/support/util/exception"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
	"github.com/tigerroll/weatherlake/internal/transform"
	"github.com/tigerroll/weatherlake/internal/weather"
)

const moduleApp = "App"

// newConnection builds the storage connection selected by the configuration.
// The connection is shared by every component in the application and closed
// on container shutdown.
func newConnection(lc fx.Lifecycle, appCtx context.Context, cfg *config.Config) (storage.Connection, error) {
	var conn storage.Connection
	var err error

	switch cfg.Storage.Type {
	case "local":
		conn, err = local.NewLocalAdapter(cfg.Storage, "pipeline")
	default:
		conn, err = gcs.NewGCSAdapter(appCtx, cfg.Storage, "pipeline")
	}
	if err != nil {
		return nil, exception.NewPipelineError(moduleApp, "failed to initialize storage connection", err, false, false)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Debugf("Closing storage connection.")
			return conn.Close()
		},
	})
	return conn, nil
}

// RunIngest loads the configuration, builds the ingestion application, and
// runs every job the event resolves to. Per-city failures are reported in the
// response body; only invocation-level failures return an error.
func RunIngest(appCtx context.Context, eventPayload string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.SetLogLevel(cfg.LogLevel)
	if err := cfg.ValidateIngest(); err != nil {
		return err
	}

	jobs, err := ingest.ParseEvent(eventPayload, cfg)
	if err != nil {
		return err
	}

	var runErr error
	app := fx.New(
		logger.Module,
		metrics.Module,
		fx.Supply(cfg),
		fx.Supply(fx.Annotate(appCtx, fx.As(new(context.Context)))),
		fx.Provide(newConnection),
		fx.Provide(func(cfg *config.Config) *weather.Client {
			return weather.NewClient(cfg.BaseURL, cfg.APIKey)
		}),
		fx.Provide(ingest.NewService),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, svc *ingest.Service, recorder *metrics.Recorder) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						defer requestShutdown(shutdowner, &runErr)
						resp, err := svc.Run(appCtx, jobs)
						if err != nil {
							runErr = err
							return
						}
						recorder.LogSummary()
						logger.Infof("Ingestion finished with status %d: %s", resp.StatusCode, resp.Body)
					}()
					return nil
				},
			})
		}),
	)

	app.Run()
	if app.Err() != nil {
		return exception.NewPipelineError(moduleApp, "ingestion application failed to start", app.Err(), false, false)
	}
	return runErr
}

// RunTransform loads the configuration, plans the unprocessed raw objects,
// and runs the bulk transform over them.
func RunTransform(appCtx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.SetLogLevel(cfg.LogLevel)
	if err := cfg.ValidateTransform(); err != nil {
		return err
	}

	var runErr error
	app := fx.New(
		logger.Module,
		metrics.Module,
		fx.Supply(cfg),
		fx.Supply(fx.Annotate(appCtx, fx.As(new(context.Context)))),
		fx.Provide(newConnection),
		fx.Provide(func(conn storage.Connection, recorder *metrics.Recorder) *planner.Planner {
			return planner.NewPlanner(conn, cfg.RawDataBucket, cfg.ProcessedDataBucket, recorder)
		}),
		fx.Provide(func(conn storage.Connection) (*transform.ParquetWriter[transform.ProcessedRecord], error) {
			return transform.NewParquetWriter(
				"processedWeatherWriter",
				map[string]string{"outputBaseDir": "processed", "compressionType": "SNAPPY"},
				conn,
				cfg.ProcessedDataBucket,
				new(transform.ProcessedRecord),
				func(r transform.ProcessedRecord) (string, error) { return r.PartitionKey(), nil },
			)
		}),
		fx.Provide(transform.NewStep),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, pl *planner.Planner, step *transform.Step, recorder *metrics.Recorder) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						defer requestShutdown(shutdowner, &runErr)
						worklist, err := pl.Plan(appCtx, cfg.MaxLookbackDays)
						if err != nil {
							runErr = err
							return
						}
						summary, err := step.Execute(appCtx, worklist)
						if err != nil {
							runErr = err
							return
						}
						recorder.LogSummary()
						logger.Infof("Transform finished: %d records processed, %d files failed.",
							summary.RecordsProcessed, summary.FilesFailed)
					}()
					return nil
				},
			})
		}),
	)

	app.Run()
	if app.Err() != nil {
		return exception.NewPipelineError(moduleApp, "transform application failed to start", app.Err(), false, false)
	}
	return runErr
}

// requestShutdown asks the fx container to stop, recovering any panic from
// the job goroutine first so the container never hangs. A recovered panic is
// recorded into runErr so the process still exits non-zero.
func requestShutdown(shutdowner fx.Shutdowner, runErr *error) {
	if r := recover(); r != nil {
		logger.Errorf("Panic recovered in job execution: %v", r)
		if *runErr == nil {
			*runErr = exception.NewPipelineErrorf(moduleApp, "job execution panicked: %v", r)
		}
	}
	if err := shutdowner.Shutdown(); err != nil {
		logger.Errorf("Failed to shutdown application: %v", err)
	}
}
