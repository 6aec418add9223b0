// Package app wires the client's components together.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lcu-draft-client/internal/champion"
	"github.com/DoyleJ11/lcu-draft-client/internal/config"
	"github.com/DoyleJ11/lcu-draft-client/internal/extractor"
	"github.com/DoyleJ11/lcu-draft-client/internal/httpapi"
	"github.com/DoyleJ11/lcu-draft-client/internal/lcu"
	"github.com/DoyleJ11/lcu-draft-client/internal/monitor"
	"github.com/DoyleJ11/lcu-draft-client/internal/notify"
	"github.com/DoyleJ11/lcu-draft-client/internal/transmit"
	"github.com/DoyleJ11/lcu-draft-client/internal/types"
	"github.com/DoyleJ11/lcu-draft-client/internal/version"
)

const (
	validateTimeout = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfg    *config.Config
	logger *zap.Logger

	bus       *notify.Bus
	store     *champion.RedisStore
	mapper    *champion.Mapper
	sink      *transmit.HTTPSink
	tx        *transmit.Transmitter
	monitor   *monitor.Monitor
	connector *lcu.Connector
	server    *http.Server
}

// fetchFunc lets the monitor reach the connector it is constructed before.
type fetchFunc func(ctx context.Context) (json.RawMessage, error)

func (f fetchFunc) ChampSelectSession(ctx context.Context) (json.RawMessage, error) { return f(ctx) }

func New(cfg *config.Config, logger *zap.Logger) *App {
	a := &App{
		cfg:    cfg,
		logger: logger,
		bus:    notify.NewBus(logger.Named("notify")),
		sink:   transmit.NewHTTPSink(cfg.Endpoint, version.Version, cfg.Transmission.RequestTimeout),
	}

	t := cfg.Transmission
	policy := transmit.DefaultRetryPolicy()
	policy.MaxAttempts = t.RetryAttempts
	if t.RetryDelay > 0 {
		policy.BaseDelay = t.RetryDelay
	}
	if t.MaxRetryDelay > 0 {
		policy.MaxDelay = t.MaxRetryDelay
	}
	limiter := transmit.NewRateLimiter(transmit.RateLimits{
		PerSecond: t.PerSecond,
		Burst:     t.Burst,
		PerMinute: t.PerMinute,
		PerHour:   t.PerHour,
	}, t.RateWaitTimeout)

	a.tx = transmit.New(a.sink, logger.Named("transmit"),
		transmit.WithBatching(t.BatchSize, t.BatchTimeout),
		transmit.WithRetryPolicy(policy),
		transmit.WithRateLimiter(limiter),
		transmit.WithConcurrency(t.Concurrency),
		transmit.WithPublisher(a.bus),
		transmit.WithEnvelope(version.Version, cfg.PasswordHash),
	)

	ex := extractor.New(logger.Named("extractor"),
		extractor.WithEmptyBanPlaceholder(cfg.Monitoring.EmptyBanPlaceholder))

	monOpts := []monitor.Option{
		monitor.WithFetcher(fetchFunc(func(ctx context.Context) (json.RawMessage, error) {
			return a.connector.ChampSelectSession(ctx)
		})),
		monitor.WithPublisher(a.bus),
		monitor.WithChangeDetection(cfg.Monitoring.ChangeDetection),
		monitor.WithRefetchTimeout(cfg.Monitoring.RefetchTimeout),
	}
	if cfg.Monitoring.ResolveNames {
		a.mapper = a.newMapper()
		monOpts = append(monOpts, monitor.WithResolver(a.mapper))
	}
	a.monitor = monitor.New(cfg.WorkspaceID, a.tx, ex, logger.Named("monitor"), monOpts...)

	var connOpts []lcu.ConnectorOption
	if cfg.LCU.Lockfile != "" {
		connOpts = append(connOpts, lcu.WithLockfile(cfg.LCU.Lockfile))
	}
	connOpts = append(connOpts,
		lcu.WithCredentials(cfg.LCU.Port, cfg.LCU.Token),
		lcu.WithRequestTimeout(cfg.LCU.RequestTimeout),
	)
	a.connector = lcu.NewConnector(a.monitor, logger.Named("lcu"), connOpts...)

	if cfg.Status.Addr != "" {
		a.server = &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           httpapi.SetupRoutes(a, a.bus, logger.Named("httpapi")),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a
}

func (a *App) newMapper() *champion.Mapper {
	c := a.cfg.Champions
	opts := []champion.Option{
		champion.WithTTL(c.TTL),
		champion.WithFallbackVersion(c.FallbackVersion),
	}
	if c.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.store = champion.NewRedisStore(ctx, c.RedisURL, a.logger.Named("redis"))
		if a.store.Enabled() {
			opts = append(opts, champion.WithStore(a.store))
		}
	}
	return champion.NewMapper(champion.NewDataDragon(c.DataDragonURL, nil), a.logger.Named("champion"), opts...)
}

// Status reports every component in one document.
func (a *App) Status(ctx context.Context) (types.Status, error) {
	ms, err := a.monitor.Status(ctx)
	if err != nil {
		return types.Status{}, err
	}
	s := types.Status{
		Version:     version.FullVersion,
		Monitor:     ms,
		Transmitter: a.tx.Stats(),
	}
	if a.mapper != nil {
		s.ChampionVersion = a.mapper.Version()
	}
	return s, nil
}

// Run starts everything and blocks until ctx ends or a component fails.
// Shutdown runs in reverse start order.
func (a *App) Run(ctx context.Context) error {
	if err := a.validateCredentials(ctx); err != nil {
		return err
	}

	a.bus.Start()
	defer a.bus.Close()
	if a.store != nil {
		defer a.store.Close()
	}

	if a.mapper != nil {
		go func() {
			if err := a.mapper.Refresh(ctx); err != nil {
				a.logger.Warn("champion data unavailable, sending raw ids", zap.Error(err))
			}
		}()
	}

	if err := a.tx.Start(ctx); err != nil {
		return fmt.Errorf("start transmitter: %w", err)
	}
	defer a.tx.Stop()

	a.monitor.Start(ctx)
	defer a.monitor.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.connector.Run(gctx)
	})
	if a.server != nil {
		g.Go(func() error {
			a.logger.Info("status api listening", zap.String("addr", a.server.Addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	a.logger.Info("lcu client running",
		zap.String("workspaceId", a.cfg.WorkspaceID),
		zap.String("endpoint", a.cfg.Endpoint),
		zap.String("version", version.FullVersion))

	err := g.Wait()
	a.logger.Info("shutting down")
	return err
}

// validateCredentials checks the workspace against the endpoint. Only an
// explicit rejection stops the client; an unreachable endpoint is retried by
// normal sends later.
func (a *App) validateCredentials(ctx context.Context) error {
	if !a.cfg.Transmission.ValidateOnStart || a.cfg.PasswordHash == "" {
		return nil
	}
	vctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	err := a.sink.Validate(vctx, a.cfg.WorkspaceID, a.cfg.PasswordHash)
	switch {
	case err == nil:
		a.logger.Info("workspace credentials accepted", zap.String("workspaceId", a.cfg.WorkspaceID))
		return nil
	case errors.Is(err, transmit.ErrInvalidCredentials):
		return err
	default:
		a.logger.Warn("could not validate workspace credentials", zap.Error(err))
		return nil
	}
}
