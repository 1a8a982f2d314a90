package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

func main() {
	// best-effort: a missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting service-account", "store", cfg.Store.Driver, "addr", cfg.HTTP.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, closeStore, err := store.Open(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("store open: %v", err)
	}
	if err := dir.EnsureIndexes(ctx); err != nil {
		sugar.Fatalf("ensure indexes: %v", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer)
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}
	hasher := auth.NewBcryptHasher(cfg.Bcrypt.Cost)
	if hasher.Cost != cfg.Bcrypt.Cost {
		sugar.Warnw("bcrypt cost out of range, using default", "configured", cfg.Bcrypt.Cost, "cost", hasher.Cost)
	}

	svc := user.NewUserService(dir, hasher, tokens, sugar)
	handler := router.RegisterRoutes(sugar, router.Options{
		Users:          user.NewHandler(svc, sugar),
		Verifier:       tokens,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorf("http server failed: %v", err)
			stop()
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := closeStore(doneCtx); err != nil {
		sugar.Warnf("store close failed: %v", err)
	}

	sugar.Info("goodbye")
}
