// Package store opens the user directory backend selected by configuration.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-account-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/database"
)

// Directory is a user.Directory that can also prepare its schema.
type Directory interface {
	user.Directory
	EnsureIndexes(ctx context.Context) error
}

// Open connects to the configured backend. The returned close func releases
// the connection and is never nil.
func Open(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (Directory, func(context.Context) error, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		client, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		logger.Infow("connected to mongo", "database", cfg.Mongo.Database)
		return userrepo.NewMongoUserRepo(client.Database(cfg.Mongo.Database)), client.Disconnect, nil

	case config.DriverPostgres:
		db, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to postgres")
		return userrepo.NewPostgresUserRepo(db), func(context.Context) error { return db.Close() }, nil

	case config.DriverMemory:
		logger.Warn("using in-memory user store; data is lost on exit")
		return userrepo.NewMemoryUserRepo(), func(context.Context) error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
