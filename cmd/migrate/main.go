// Command migrate prepares the configured user store: the users collection or
// table and its unique email index. It is safe to run repeatedly.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

func main() {
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

	if err := run(cfg, sugar); err != nil {
		sugar.Errorf("migrate: %v", err)
		lg.Sync()
		os.Exit(1)
	}
	sugar.Infow("migration complete", "store", cfg.Store.Driver)
}

func run(cfg *config.Config, sugar *zap.SugaredLogger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dir, closeStore, err := store.Open(ctx, cfg, sugar)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer closeStore(context.Background())

	if err := dir.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}
