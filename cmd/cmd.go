package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solisctl/solis-integration/internal/pkg/bridge"
	"github.com/solisctl/solis-integration/internal/pkg/config"
	"github.com/solisctl/solis-integration/internal/pkg/contxt"
	"github.com/solisctl/solis-integration/internal/pkg/database"
	"github.com/solisctl/solis-integration/internal/pkg/database/migration"
	"github.com/solisctl/solis-integration/internal/pkg/model"
	"github.com/solisctl/solis-integration/internal/pkg/mqtt"
	"github.com/solisctl/solis-integration/internal/pkg/publisher"
	"github.com/solisctl/solis-integration/internal/pkg/server"
	"github.com/solisctl/solis-integration/pkg/soliscloud"
)

var errCron = errors.New("cron error")

func ControllerCommand(ctx *cli.Context) error {
	cfg := &config.Config{
		Solis: &config.SolisConfig{
			KeyID:      ctx.String("key-id"),
			KeySecret:  ctx.String("key-secret"),
			InverterID: ctx.String("inverter-id"),
			Endpoint:   ctx.String("api-url"),
			Timeout:    ctx.Duration("http-timeout"),
		},
		Mqtt: &config.MqttConfig{
			Host:     ctx.String("mqtt-host"),
			Username: ctx.String("mqtt-user"),
			Password: ctx.String("mqtt-pass"),
			Prefix:   ctx.String("topic-prefix"),
			ClientID: "solis-controller",
		},
		Discovery: ctx.Bool("discovery"),
		Silent:    ctx.Bool("silent"),
		LogLevel:  ctx.String("log-level"),
	}

	env, err := config.FromEnv()
	if err != nil {
		return err
	}

	return run(ctx.Context, cfg, env)
}

func run(ctx context.Context, cfg *config.Config, env config.Environment) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.Silent)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errorChan := make(chan error, 1000)
	eg, ctx := errgroup.WithContext(ctx)

	registry := publisher.New(logger)

	busSvc := mqtt.New(cfg.Mqtt, logger)
	if err := registry.Register("mqtt", busSvc); err != nil {
		return err
	}

	clientOpts := []soliscloud.OptionFunc{soliscloud.WithBaseURL(cfg.Solis.Endpoint)}
	if cfg.Solis.Timeout > 0 {
		clientOpts = append(clientOpts, soliscloud.WithTimeout(cfg.Solis.Timeout))
	}
	solisClient, err := soliscloud.New(soliscloud.Config{
		KeyID:      cfg.Solis.KeyID,
		KeySecret:  cfg.Solis.KeySecret,
		InverterID: cfg.Solis.InverterID,
	}, clientOpts...)
	if err != nil {
		return err
	}

	var auditStore *database.Store
	if env.DatabaseURL != "" {
		if err := migration.Migrate(env.DatabaseURL, env.MigrationsFolder); err != nil {
			return err
		}
		if auditStore, err = database.New(ctx, env.DatabaseURL); err != nil {
			return err
		}
		defer auditStore.Close()
		if err := registry.Register("postgres", auditStore); err != nil {
			return err
		}
		eg.Go(func() error {
			return cronCleanup(ctx, auditStore, env.CleanupSchedule, errorChan)
		})
	}

	bridgeSvc := bridge.New(cfg, solisClient, busSvc, registry, errorChan)

	eg.Go(func() error {
		return bridgeSvc.Run(ctx)
	})

	eg.Go(func() error {
		return cronRefresh(ctx, bridgeSvc, env.RefreshSchedule, errorChan)
	})

	if env.StatusAddr != "" {
		var history server.HistoryStore
		if auditStore != nil {
			history = auditStore
		}
		srv := &http.Server{
			Handler:      server.New(bridgeSvc, registry, history, cfg.Discovery).Router(),
			Addr:         env.StatusAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		eg.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		return consumeErrors(ctx, errorChan, logger)
	})

	return eg.Wait()
}

func newLogger(level string, silent bool) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()

	var err error
	if logCfg.Level, err = zap.ParseAtomicLevel(level); err != nil {
		return nil, err
	}
	if silent {
		// Informational output is silenced; the diagnostic stream stays.
		logCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// consumeErrors drains the async error channel. Handler failures are
// logged and survived; only a broken cron schedule aborts the group.
func consumeErrors(ctx context.Context, errorChan chan error, logger *zap.Logger) error {
	for {
		select {
		case err := <-errorChan:
			if errors.Is(err, errCron) {
				logger.Error("cron error", zap.Error(err))
				return err
			}
			logger.Error("handler error", zap.Error(err))
		case <-ctx.Done():
			logger.Info("context done")
			return ctx.Err()
		}
	}
}

type refreshEnqueuer interface {
	Enqueue(cmd model.Command) error
}

func cronRefresh(ctx context.Context, bs refreshEnqueuer, schedule string, errChan chan error) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := bs.Enqueue(model.Command{Kind: model.RefreshCommand, Topic: "cron"}); err != nil {
			zap.L().Error("failed to enqueue refresh", zap.Error(err))
			errChan <- err
			return
		}
		zap.L().Debug("scheduled refresh enqueued")
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func cronCleanup(ctx context.Context, store *database.Store, schedule string, errChan chan error) error {
	if err := store.Cleanup(ctx); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := store.Cleanup(contxt.NewContext(time.Minute)); err != nil {
			zap.L().Error("error cleaning up audit store", zap.Error(err))
			errChan <- errCron
			return
		}
		zap.L().Info("audit store cleaned up")
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
