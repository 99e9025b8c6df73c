package app

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"basis-alerts/internal/alerting"
	"basis-alerts/internal/backoff"
	"basis-alerts/internal/bus"
	"basis-alerts/internal/config"
	"basis-alerts/internal/fetcher"
	"basis-alerts/internal/gate"
	"basis-alerts/internal/health"
	"basis-alerts/internal/quotes"
	"basis-alerts/internal/scheduler"
	"basis-alerts/internal/service"
	"basis-alerts/internal/storage"
	"basis-alerts/internal/stream"
)

// Source tags for the two streaming legs.
const (
	SourceSpot   = "SPOT"
	SourceLinear = "LINEAR"
)

const exchangeTag = "bybit"

// App aggregates configuration and shared dependencies for the CLI
// commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	tg := a.Config.Alerting.Telegram
	if tg.Enabled {
		return alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 10*time.Second, tg.MinInterval, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger), nil
}

func (a *App) newStreamClient(source string, venue config.VenueConfig, monitor *health.Monitor) (*stream.Client, error) {
	policy, err := backoff.New(backoff.Options{
		Base:     a.Config.Backoff.Base,
		Factor:   a.Config.Backoff.Factor,
		Cap:      a.Config.Backoff.Cap,
		MaxSleep: a.Config.Backoff.MaxSleep,
	})
	if err != nil {
		return nil, err
	}

	return stream.NewClient(stream.Options{
		Source:    source,
		URL:       venue.URL,
		Topics:    venue.Topics,
		Heartbeat: a.Config.Venues.HeartbeatInterval,
	}, stream.GorillaDialer(a.Config.Venues.HandshakeTimeout), policy, monitor, a.Logger)
}

// Run executes the long-running ingestion and alerting pipeline.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert state is memory-only")
	}
	if closeStore != nil {
		defer closeStore()
	}

	eventBus := bus.New(a.Logger)
	monitor := health.NewMonitor()
	cache := quotes.NewCache()

	var repo gate.Repository
	var audit storage.AlertStore
	if store != nil {
		repo = store
		audit = store
	}
	alertGate := gate.New(gate.Options{
		Cooldown:       a.Config.Alerting.Cooldown,
		SuppressEpsPct: a.Config.Alerting.SuppressEpsPct,
		SuppressWindow: a.Config.Alerting.SuppressWindow,
	}, repo, a.Logger)

	service.NewCacheUpdater(cache, SourceSpot, SourceLinear, a.Logger).Attach(eventBus)

	if a.Config.Alerting.Enabled {
		notifier, err := a.newNotifier()
		if err != nil {
			return err
		}
		service.NewAlertSubscriber(service.SubscriberOptions{
			SpotSource:    SourceSpot,
			LinearSource:  SourceLinear,
			ThresholdPct:  a.Config.Alerting.ThresholdPct,
			MinPrice:      a.Config.Alerting.MinPrice,
			Allow:         a.Config.Alerting.Allow,
			Deny:          a.Config.Alerting.Deny,
			LocalCooldown: a.Config.Alerting.LocalCooldown,
		}, alertGate, notifier, audit, a.Logger).Attach(eventBus)
	} else {
		a.Logger.Info().Msg("alerting disabled; running ingestion only")
	}

	spotClient, err := a.newStreamClient(SourceSpot, a.Config.Venues.Spot, monitor)
	if err != nil {
		return err
	}
	linearClient, err := a.newStreamClient(SourceLinear, a.Config.Venues.Linear, monitor)
	if err != nil {
		return err
	}

	refreshSched, err := scheduler.New(scheduler.Options{
		Interval:   a.Config.Refresh.Interval,
		RunAtStart: true,
	}, a.Logger)
	if err != nil {
		return err
	}
	scanSched, err := scheduler.New(scheduler.Options{
		Interval: a.Config.Refresh.ScanInterval,
	}, a.Logger)
	if err != nil {
		return err
	}

	stats := fetcher.NewTickers(fetcher.TickersOptions{
		BaseURL:   a.Config.Refresh.RESTBaseURL,
		UserAgent: a.Config.App.Name + "/" + a.Config.App.Environment,
	}, a.Logger)
	refresher := service.NewVolumeRefresher(refreshSched, stats, cache, a.Config.Refresh.Categories, a.Logger)
	scanner := service.NewScanner(scanSched, cache, quotes.Filter{
		ThresholdPct: a.Config.Alerting.ThresholdPct,
		MinPrice:     a.Config.Alerting.MinPrice,
		MinVolumeUSD: a.Config.Alerting.MinVolumeUSD,
		Allow:        a.Config.Alerting.Allow,
		Deny:         a.Config.Alerting.Deny,
	}, a.Config.Refresh.ScanTop, a.Logger)

	var statusServer *health.Server
	if addr := a.Config.Health.ListenAddr; addr != "" {
		statusServer = health.NewServer(addr, monitor, eventBus, a.Logger)
		statusServer.Start()
	}

	a.Logger.Info().Msg("starting basis pipeline")

	var wg sync.WaitGroup
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Error().Err(err).Str("task", name).Msg("task terminated")
			}
		}()
	}

	start("spot_stream", func(ctx context.Context) error {
		return spotClient.Run(ctx, service.Bridge(SourceSpot, exchangeTag, eventBus))
	})
	start("linear_stream", func(ctx context.Context) error {
		return linearClient.Run(ctx, service.Bridge(SourceLinear, exchangeTag, eventBus))
	})
	start("volume_refresh", refresher.Run)
	start("candidate_scan", scanner.Run)

	<-ctx.Done()
	spotClient.Stop()
	linearClient.Stop()
	wg.Wait()

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("status server shutdown failed")
		}
	}

	a.Logger.Info().Msg("basis pipeline stopped")
	return nil
}

// ExportOptions hold parameters for exporting the alert history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
