// Package graph implements the Neo4j thread embedding store.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DriverConfig holds the embedding store connection settings.
type DriverConfig struct {
	URL            string
	Username       string
	Password       string
	Database       string
	MaxPoolSize    int
	AcquireTimeout time.Duration
}

func DefaultDriverConfig(url, username, password, database string) DriverConfig {
	if database == "" {
		database = "neo4j"
	}
	return DriverConfig{
		URL:            url,
		Username:       username,
		Password:       password,
		Database:       database,
		MaxPoolSize:    10,
		AcquireTimeout: 30 * time.Second,
	}
}

// Connect creates a driver and verifies that the server is reachable.
// Anonymous auth is used when no password is set.
func Connect(ctx context.Context, cfg DriverConfig) (neo4j.DriverWithContext, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" && cfg.Password != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URL, auth, func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		if cfg.AcquireTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.AcquireTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("verify connectivity: %w", err)
	}

	return driver, nil
}
