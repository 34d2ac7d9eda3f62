package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/codeshare/internal/api"
	"github.com/charlesng35/codeshare/internal/app"
	"github.com/charlesng35/codeshare/internal/app/maintenance"
	"github.com/charlesng35/codeshare/internal/cache"
	"github.com/charlesng35/codeshare/internal/database"
	"github.com/charlesng35/codeshare/internal/discovery"
	"github.com/charlesng35/codeshare/internal/journal"
	"github.com/charlesng35/codeshare/internal/monitoring"
	"github.com/charlesng35/codeshare/internal/monitoring/checks"
	"github.com/charlesng35/codeshare/internal/realtime"
	"github.com/charlesng35/codeshare/internal/session"
)

const probeTimeout = 2 * time.Second

// runtimeStack bundles the long-lived components of the server.
type runtimeStack struct {
	cfg *app.Config

	DB         *gorm.DB
	Redis      *cache.RedisClient
	Journal    *journal.DatabaseRecorder
	Monitoring *monitoring.Module
	Store      *session.Store
	Dispatcher *session.Dispatcher
	TCP        *realtime.Server
	Listener   net.Listener
	Gateway    *realtime.Gateway
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
	HTTP       *http.Server
	HTTPLn     net.Listener
	Advertiser *discovery.Advertiser

	serveCtx    context.Context
	cancelServe context.CancelFunc
	tcpDone     chan error
}

// bootstrapRuntime opens the journal backends, builds the session engine and
// binds the listeners. Nothing accepts connections until Serve.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{cfg: cfg}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	recorders := []journal.Recorder{}
	if cfg.Journal.Enabled {
		stack.DB, err = database.OpenAndMigrate(cfg.Database.DatabaseClientConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise journal database: %w", err)
		}
		log.Info("journal database connected", zap.String("driver", cfg.Database.DatabaseClientConfig().Driver))

		stack.Journal, err = journal.NewDatabaseRecorder(stack.DB)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, stack.Journal)
	}

	if fanout, ok := cfg.Cache.EventFanout(); ok {
		if stack.Redis, err = cache.NewRedisClient(ctx, fanout.Client); err != nil {
			log.Warn("redis unavailable; journal events will not be published", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", fanout.Client.Address))
			publisher, pubErr := journal.NewRedisPublisher(stack.Redis, fanout.Channel)
			if pubErr != nil {
				return nil, pubErr
			}
			recorders = append(recorders, publisher)
		}
	}

	palette := session.NewPalette(cfg.Session.Palette, uint64(time.Now().UnixNano()))
	stack.Store = session.NewStore(session.WithColorPicker(palette.Pick))
	stack.Dispatcher = session.NewDispatcher(stack.Store,
		session.WithJournal(journal.NewLogged(journal.Combine(recorders...))),
	)

	stack.TCP = realtime.NewServer(stack.Dispatcher)
	stack.Listener, err = stack.TCP.Listen(cfg.Session.ListenAddress)
	if err != nil {
		return nil, err
	}

	if cfg.WebSocket.Enabled && cfg.HTTP.Enabled {
		stack.Gateway = realtime.NewGateway(stack.Dispatcher)
	}

	stack.registerHealthChecks()

	var pruner maintenance.JournalPruner
	if stack.Journal != nil {
		pruner = stack.Journal
	}
	stack.Cleaner = maintenance.NewCleaner(pruner,
		maintenance.WithRetentionDays(cfg.Journal.RetentionDays),
		maintenance.WithJournalSchedule(strings.TrimSpace(cfg.Journal.CleanupSchedule)),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if cfg.HTTP.Enabled {
		deps := api.Dependencies{
			Config:     cfg,
			Session:    stack.Store,
			Monitoring: stack.Monitoring,
		}
		if stack.Journal != nil {
			deps.Events = stack.Journal
		}
		if stack.Gateway != nil {
			deps.WebSocket = stack.Gateway
		}
		stack.Router, err = api.NewRouter(deps)
		if err != nil {
			return nil, fmt.Errorf("build api router: %w", err)
		}
		stack.HTTP = &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           stack.Router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		stack.HTTPLn, err = net.Listen("tcp", cfg.HTTP.Address)
		if err != nil {
			return nil, fmt.Errorf("listen admin server on %s: %w", cfg.HTTP.Address, err)
		}
	}

	if cfg.Discovery.Enabled {
		stack.Advertiser, err = discovery.Advertise(cfg.Discovery.DiscoveryClientConfig(), stack.Listener.Addr())
		if err != nil {
			log.Warn("mdns advertisement unavailable", zap.Error(err))
			stack.Advertiser = nil
		}
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) registerHealthChecks() {
	health := s.Monitoring.Health()
	health.RegisterLiveness(checks.Session(s.Store))

	health.RegisterReadiness(checks.Database(s.DB, s.cfg.Journal.Enabled, probeTimeout))

	var pinger checks.RedisPinger
	if s.Redis != nil {
		pinger = s.Redis
	}
	health.RegisterReadiness(checks.Redis(pinger, s.cfg.Cache.Redis.Enabled, probeTimeout))

	transports := map[string]checks.Transport{realtime.TransportTCP: s.TCP}
	switch {
	case s.Gateway != nil:
		transports[realtime.TransportWebSocket] = s.Gateway
	case s.cfg.WebSocket.Enabled:
		transports[realtime.TransportWebSocket] = nil
	}
	health.RegisterReadiness(checks.Transports(transports))
	health.RegisterReadiness(checks.Maintenance(0))
}

// Serve starts the TCP listener and the admin server. It returns when ctx is
// cancelled or a listener fails.
func (s *runtimeStack) Serve(ctx context.Context, log *zap.Logger) error {
	s.serveCtx, s.cancelServe = context.WithCancel(ctx)
	s.tcpDone = make(chan error, 1)
	go func() {
		s.tcpDone <- s.TCP.Serve(s.serveCtx, s.Listener)
	}()

	httpErr := make(chan error, 1)
	if s.HTTP != nil {
		go func() {
			log.Info("admin server listening", zap.String("addr", s.HTTPLn.Addr().String()))
			if err := s.HTTP.Serve(s.HTTPLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		return nil
	case err := <-s.tcpDone:
		s.tcpDone <- err
		if err != nil {
			return fmt.Errorf("session listener: %w", err)
		}
		return nil
	case err := <-httpErr:
		return fmt.Errorf("admin server: %w", err)
	}
}

// Shutdown stops the listeners, closes every connection and releases
// resources. Errors are aggregated.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}
	var errs error

	if s.HTTP != nil && s.cancelServe == nil && s.HTTPLn != nil {
		_ = s.HTTPLn.Close()
	}
	if s.HTTP != nil {
		if err := s.HTTP.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = multierr.Append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}

	if s.Gateway != nil {
		s.Gateway.Close()
	}

	switch {
	case s.cancelServe != nil:
		s.cancelServe()
		select {
		case err := <-s.tcpDone:
			errs = multierr.Append(errs, err)
		case <-ctx.Done():
			errs = multierr.Append(errs, fmt.Errorf("session listener shutdown: %w", ctx.Err()))
		}
	case s.Listener != nil:
		_ = s.Listener.Close()
	}

	if s.Advertiser != nil {
		if err := s.Advertiser.Shutdown(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mdns shutdown: %w", err))
		}
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errs
}
