// Package mongodb implements the MongoDB processing log sink.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ClientConfig sizes the connection used by the log sink.
type ClientConfig struct {
	URL             string
	Database        string
	AppName         string
	MaxPoolSize     uint64
	SelectTimeout   time.Duration
	MaxConnIdleTime time.Duration
}

func DefaultClientConfig(url, database string) ClientConfig {
	return ClientConfig{
		URL:             url,
		Database:        database,
		AppName:         "mailsync-worker",
		MaxPoolSize:     20,
		SelectTimeout:   5 * time.Second,
		MaxConnIdleTime: 30 * time.Second,
	}
}

// Connect opens a client and pings the primary. Log writes are small and
// frequent, so the pool stays modest and retryable writes are on.
func Connect(ctx context.Context, cfg ClientConfig) (*mongo.Client, *mongo.Database, error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("mongodb url is empty")
	}

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetAppName(cfg.AppName).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetServerSelectionTimeout(cfg.SelectTimeout).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}
