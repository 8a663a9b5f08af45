// cmd/notifier/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rating-notifier/internal/common/aws"
	"rating-notifier/internal/common/codeforces"
	"rating-notifier/internal/common/config"
	"rating-notifier/internal/common/database"
	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/common/observability"
	"rating-notifier/internal/common/scheduler"
	"rating-notifier/internal/detector"
	"rating-notifier/internal/mailer"
	"rating-notifier/internal/models"
	"rating-notifier/internal/outbox"
	"rating-notifier/internal/registry"

	de "rating-notifier/internal/workers/delivery/deliver-emails"
	pr "rating-notifier/internal/workers/handles/poll-ratings"
	ri "rating-notifier/internal/workers/handles/reap-invalid-handles"
	vu "rating-notifier/internal/workers/handles/verify-unknown-handles"
)

// app holds the process-wide clients shared by every subcommand.
type app struct {
	cfg   *config.Config
	zap   *zap.Logger
	log   logger.Logger
	obs   *observability.Observability
	pg    *database.PostgresClient
	redis *database.RedisClient

	registry *registry.PostgresRegistry
	outbox   *outbox.PostgresOutbox
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// newApp loads configuration and builds the logger. Connections are opened
// separately so that commands only dial what they use.
func newApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}

	zapLog := logger.NewService(cfg.Logging.Level, cfg.Logging.Format, cfg.App.Name, cfg.App.Environment)
	log := logger.NewZapAdapter(zapLog)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("OpenTelemetry exporter unavailable, job instruments disabled", zap.Error(err))
	}

	return &app{cfg: cfg, zap: zapLog, log: log, obs: obs}, nil
}

// connectPostgres dials Postgres with retries and applies pending migrations.
func (a *app) connectPostgres(ctx context.Context) error {
	err := retryWithBackoff(ctx, func() error {
		var err error
		a.pg, err = database.NewPostgres(a.cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return a.pg.Ping(ctx)
	}, 15, 2*time.Second, a.zap, "PostgreSQL connection")
	if err != nil {
		return err
	}
	a.zap.Info("PostgreSQL connected successfully")

	if err := database.RunMigrations(ctx, a.pg.DB); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	a.registry = registry.NewPostgresRegistry(a.pg.DB, a.log)
	a.outbox = outbox.NewPostgresOutbox(a.pg.DB, a.log)
	return nil
}

func (a *app) connectRedis(ctx context.Context) error {
	err := retryWithBackoff(ctx, func() error {
		var err error
		a.redis, err = database.NewRedis(a.cfg.Database.Redis)
		if err != nil {
			return err
		}
		return a.redis.Ping(ctx)
	}, 10, 2*time.Second, a.zap, "Redis connection")
	if err != nil {
		return err
	}
	a.zap.Info("Redis connected successfully")
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.obs.Shutdown(shutdownCtx)
	_ = a.zap.Sync()
}

// alerter returns the SNS alerter when a topic is configured, nil otherwise.
func (a *app) alerter(ctx context.Context) (apperrors.Alerter, error) {
	if a.cfg.Alerts.SNSTopicARN == "" {
		return nil, nil
	}
	client, err := aws.NewSNSClient(ctx, a.cfg.Alerts.Region)
	if err != nil {
		return nil, fmt.Errorf("sns client: %w", err)
	}
	return aws.NewSNSAlerter(client, a.cfg.Alerts.SNSTopicARN), nil
}

// buildScheduler constructs every job controller and registers the enabled
// ones. Postgres and Redis must already be connected.
func (a *app) buildScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	ratings := codeforces.NewHTTPClient(a.cfg.Codeforces.BaseURL, config.GetDuration(a.cfg.Codeforces.Timeout), a.log)
	det := detector.New(a.log)

	mail, err := mailer.New(ctx, a.cfg, a.log)
	if err != nil {
		return nil, err
	}

	alerter, err := a.alerter(ctx)
	if err != nil {
		return nil, err
	}
	reporter := apperrors.NewReporter(a.log, alerter)

	var locker scheduler.Locker = scheduler.NoopLocker{}
	if a.redis != nil {
		locker = scheduler.NewRedisLocker(a.redis.Client)
	}
	sched := scheduler.New(locker, a.log)

	jobs := map[string]scheduler.Job{
		vu.TaskType: vu.NewHandler(
			vu.LoadConfig(config.GetJobConfig(a.cfg, vu.TaskType)),
			a.registry, ratings, reporter, a.obs, a.log,
		),
		pr.TaskType: pr.NewHandler(
			pr.LoadConfig(config.GetJobConfig(a.cfg, pr.TaskType)),
			a.registry, ratings, a.outbox, det, reporter, a.obs, a.log,
		),
		ri.TaskType: ri.NewHandler(
			ri.LoadConfig(config.GetJobConfig(a.cfg, ri.TaskType)),
			a.registry, a.outbox, reporter, a.obs, a.log,
		),
	}
	for _, typ := range models.NotificationTypes {
		taskType, err := de.TaskTypeFor(typ)
		if err != nil {
			return nil, err
		}
		handler, err := de.NewHandler(
			de.LoadConfig(config.GetJobConfig(a.cfg, taskType)),
			typ, a.outbox, mail, reporter, a.obs, a.log,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s handler: %w", taskType, err)
		}
		jobs[taskType] = handler
	}

	for _, name := range config.JobNames {
		jobCfg := config.GetJobConfig(a.cfg, name)
		if !jobCfg.Enabled {
			a.zap.Info("job disabled", zap.String("job", name))
			continue
		}
		if err := sched.Register(name, jobs[name], config.GetDuration(jobCfg.Interval), config.GetDuration(jobCfg.LockTTL)); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	return sched, nil
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s aborted: %w", operationName, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
