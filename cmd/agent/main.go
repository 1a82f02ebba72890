package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/driver-agent/internal/admin"
	"github.com/example/driver-agent/internal/channel"
	"github.com/example/driver-agent/internal/config"
	"github.com/example/driver-agent/internal/creds"
	"github.com/example/driver-agent/internal/lifecycle"
	"github.com/example/driver-agent/internal/location"
	"github.com/example/driver-agent/internal/logging"
	"github.com/example/driver-agent/internal/payments"
	"github.com/example/driver-agent/internal/route"
	"github.com/example/driver-agent/internal/storage"
)

func main() {
	cfg, err := config.LoadAgentConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store creds.Store
	if cfg.RedisAddr != "" {
		rs := creds.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionKey)
		defer rs.Close()
		store = rs
	} else {
		store = creds.NewMemStore()
	}

	session, err := store.Load(ctx)
	if errors.Is(err, creds.ErrNotAuthenticated) {
		// The login flow lives outside the agent; a fresh install is
		// bootstrapped from the environment.
		session = creds.Session{
			Token:       os.Getenv("DRIVER_TOKEN"),
			DriverID:    os.Getenv("DRIVER_ID"),
			DriverName:  os.Getenv("DRIVER_NAME"),
			VehicleType: getenv("VEHICLE_TYPE", "sedan"),
		}
		if session.Token == "" || session.DriverID == "" || session.DriverName == "" {
			logger.Error("no stored session and no DRIVER_TOKEN/DRIVER_ID/DRIVER_NAME provided")
			os.Exit(1)
		}
		if err := store.Save(ctx, session); err != nil {
			logger.Warn("session persist failed", "err", err)
		}
	} else if err != nil {
		logger.Error("session load failed", "err", err)
		os.Exit(1)
	}
	if err := creds.CheckToken(session); err != nil {
		logger.Error("stored token unusable, log in again", "err", err)
		os.Exit(1)
	}

	ch := channel.NewClient(cfg.ChannelURL, session.Token, logger)

	var planner route.Planner
	if cfg.OSRMURL != "" {
		planner = route.NewCache(route.NewOSRMClient(cfg.OSRMURL), 5*time.Minute)
	} else {
		logger.Warn("OSRM_URL not set, route lines degrade to straight segments")
		planner = route.StraightLine{}
	}

	var sinks []location.Sink
	if cfg.APIBaseURL != "" {
		sinks = append(sinks, location.NewHTTPReporter(cfg.APIBaseURL, session.Token))
	}
	if len(cfg.KafkaBrokers) > 0 {
		ks := location.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer ks.Close()
		sinks = append(sinks, ks)
	}

	var journal storage.RideLog
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresLog(cfg.PGDSN)
		if err != nil {
			logger.Warn("ride journal unavailable, falling back to memory", "err", err)
		} else {
			defer pg.Close()
			journal = pg
		}
	}
	if journal == nil {
		journal = storage.NewMemoryLog()
	}

	var fares lifecycle.FareService
	if cfg.StripeAPIKey != "" {
		fares = payments.NewFareClient(cfg.StripeAPIKey)
	}

	ctrl := lifecycle.NewController(
		lifecycle.Identity{
			DriverID:    session.DriverID,
			DriverName:  session.DriverName,
			VehicleType: session.VehicleType,
		},
		lifecycle.Deps{
			Channel: ch,
			Planner: planner,
			Journal: journal,
			Fares:   fares,
			Sinks:   sinks,
			Log:     logger,
		},
		lifecycle.Config{
			AckTimeout:          cfg.AckTimeout,
			UserDataDelay:       cfg.UserDataDelay,
			AcceptRetryAttempts: cfg.AcceptRetryAttempts,
			AcceptRetryBackoff:  cfg.AcceptRetryBackoff,
			TruncateInterval:    cfg.TruncateInterval,
			PollInterval:        cfg.PollInterval,
			DebounceInterval:    cfg.DebounceInterval,
			PersistEvery:        cfg.PersistEvery,
			FareCurrency:        cfg.FareCurrency,
		},
	)
	ctrl.Bind(ch)
	defer ctrl.Close()

	provider := location.NewJSONLinesProvider(os.Stdin)
	go func() {
		if err := provider.Watch(ctx, ctrl.OnLocation); err != nil && ctx.Err() == nil {
			logger.Warn("location feed ended", "err", err)
		}
	}()

	// wait (bounded) for a first fix so driver registration carries a
	// real position instead of (0,0)
	fixCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.InitialFixAttempts)*cfg.InitialFixDelay+cfg.InitialFixDelay)
	if _, err := location.InitialFix(fixCtx, provider, cfg.InitialFixAttempts, cfg.InitialFixDelay); err != nil {
		logger.Warn("starting without a position fix", "err", err)
	}
	cancel()

	go ch.Run(ctx)

	srv := &http.Server{Addr: cfg.AdminAddr, Handler: admin.NewServer(ctrl, logger)}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		_ = ch.Close()
	}()

	logger.Info("driver-agent running", "driver", session.DriverID, "channel", cfg.ChannelURL, "admin", cfg.AdminAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("admin server stopped", "err", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
