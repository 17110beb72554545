package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"edugate.org/internal/apperror"
	"edugate.org/internal/audit"
	"edugate.org/internal/config"
	"edugate.org/internal/httpapi"
	"edugate.org/internal/obs"
	"edugate.org/internal/session"
	"edugate.org/internal/token"
)

var version = "0.3.1"

func main() {
	configPath := flag.String("config", os.Getenv("EDUGATE_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load("authsvc", *configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()

	tokens, err := token.NewService(cfg.Token)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	respond := apperror.NewResponder(!cfg.Hardened())

	var (
		sessionStore session.Store
		redisClient  *redis.Client
	)
	if cfg.Session.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		sessionStore = session.NewRedisStore(redisClient)
	} else {
		sessionStore = session.NewMemoryStore()
	}
	monitor := session.NewMonitor(cfg.Session, sessionStore, respond, cfg.Hardened())

	var pgStore *audit.PGStore
	recorder := audit.NewRecorder(nil)
	if cfg.Audit.PostgresDSN != "" {
		pgStore, err = audit.OpenPG(cfg.Audit.PostgresDSN)
		if err != nil {
			log.Fatalf("open audit store: %v", err)
		}
		recorder = audit.NewRecorder(pgStore)
	}

	probe := httpapi.ReadyProbe{Redis: redisClient}
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}

	// Real deployments inject their user-service collaborator here; the
	// default rejects every login.
	api := httpapi.New(cfg, tokens, monitor, recorder, httpapi.DenyAllCredentials, probe, version)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go monitor.Sweep(sweepCtx, cfg.Session.SweepInterval.Std())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting authsvc %s on %s (%s mode)", version, srv.Addr, cfg.Mode)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("shutting down...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Println("stopped")
}
