// Package graph projects active entities into a Bolt-speaking graph store
// (Memgraph or Neo4j) for relationship queries.
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client owns the Bolt driver. The driver keeps its own connection pool, one
// Client per process is enough.
type Client struct {
	driver neo4j.DriverWithContext
	logger ectologger.Logger
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// NewClient dials the graph store. An empty username means no auth, which is
// how a local Memgraph runs.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	uri := fmt.Sprintf("bolt://%s:%d", cfg.Host, cfg.Port)

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}

	return &Client{
		driver: driver,
		logger: logger,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity checks that the store is reachable. Used at boot and by
// the health endpoints.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// ExecuteWrite runs work inside a managed write transaction on a session
// scoped to the call.
func (c *Client) ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	return session.ExecuteWrite(ctx, work)
}
