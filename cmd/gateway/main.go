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

	"edugate.org/internal/apperror"
	"edugate.org/internal/config"
	"edugate.org/internal/correlate"
	"edugate.org/internal/gateway"
	"edugate.org/internal/obs"
	"edugate.org/internal/token"
)

var version = "0.3.1"

func main() {
	configPath := flag.String("config", os.Getenv("EDUGATE_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load("gateway", *configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()

	tokens, err := token.NewService(cfg.Token)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	respond := apperror.NewResponder(!cfg.Hardened())

	gw, err := gateway.New(cfg.Gateway, tokens, respond)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"ok","service":"gateway","version":"` + version + `"}`))
	})
	mux.Handle("/metrics", obs.Handler())
	mux.Handle("/", gw)

	var handler http.Handler = mux
	handler = correlate.Recover(respond)(handler)
	handler = correlate.LoggingJSON(cfg.SlowThreshold.Std())(handler)
	handler = obs.Instrument(handler)
	handler = gateway.RateLimit(handler, respond, cfg.Gateway.RateLimit.PerSecond, cfg.Gateway.RateLimit.Burst)
	handler = correlate.SecurityHeaders(handler)
	handler = correlate.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting gateway %s on %s (%s mode, %d routes)", version, srv.Addr, cfg.Mode, len(cfg.Gateway.Routes))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("stopped")
}
