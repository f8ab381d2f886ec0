package storage

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/config"
	"github.com/rl1809/sweet-shop/internal/port"
)

// Stores bundles the repositories selected by STORE_DRIVER.
type Stores struct {
	Sweets port.SweetRepository
	Users  port.UserRepository
	Close  func(ctx context.Context) error
}

func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case "mongo":
		return openMongo(ctx, cfg, logger)
	case "mysql":
		return openMySQL(ctx, cfg, logger)
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		mem := NewMemoryAdapter()
		return &Stores{
			Sweets: mem,
			Users:  mem,
			Close:  func(context.Context) error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openMongo(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("connected to mongo", zap.String("db", cfg.MongoDB))

	db := client.Database(cfg.MongoDB)
	sweets := NewMongoAdapter(db)
	users := NewMongoUserAdapter(db)

	if err := sweets.EnsureIndexes(ctx); err != nil {
		logger.Warn("failed to create sweet indexes", zap.Error(err))
	}
	if err := users.EnsureIndexes(ctx); err != nil {
		logger.Warn("failed to create user indexes", zap.Error(err))
	}

	return &Stores{
		Sweets: sweets,
		Users:  users,
		Close:  client.Disconnect,
	}, nil
}

func openMySQL(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	db, err := sqlx.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	logger.Info("connected to mysql")

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Stores{
		Sweets: adapter,
		Users:  adapter,
		Close:  func(context.Context) error { return db.Close() },
	}, nil
}
