package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// DefaultCassandraQueryTimeout is the default timeout for Cassandra queries
const DefaultCassandraQueryTimeout = 5 * time.Second

// CassandraDB wraps the gocql Session with context support
type CassandraDB struct {
	Session *gocql.Session
}

// CassandraConfig holds Cassandra connection configuration
type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Username    string
	Password    string
	Consistency string // ONE, QUORUM, LOCAL_QUORUM ...
	Timeout     time.Duration
}

// NewCassandraDBWithConfig creates a new CassandraDB instance with full configuration
func NewCassandraDBWithConfig(config *CassandraConfig) (*CassandraDB, error) {
	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Consistency = gocql.Quorum
	if config.Consistency != "" {
		consistency, err := gocql.ParseConsistencyWrapper(config.Consistency)
		if err != nil {
			return nil, fmt.Errorf("invalid cassandra consistency %q: %w", config.Consistency, err)
		}
		cluster.Consistency = consistency
	}
	// LWTs on read receipts need a serial consistency
	cluster.SerialConsistency = gocql.LocalSerial

	if config.Timeout > 0 {
		cluster.Timeout = config.Timeout
	} else {
		cluster.Timeout = DefaultCassandraQueryTimeout
	}

	if config.Username != "" && config.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}
	return &CassandraDB{Session: session}, nil
}

// Close closes the Cassandra session
func (c *CassandraDB) Close() {
	c.Session.Close()
}

// QueryWithContext builds a query bound to ctx. Queries without a ctx deadline
// are still bounded by the cluster timeout.
func (c *CassandraDB) QueryWithContext(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return c.Session.Query(stmt, values...).WithContext(ctx)
}

// ExecWithContext executes a query without returning results
func (c *CassandraDB) ExecWithContext(ctx context.Context, stmt string, values ...interface{}) error {
	return c.QueryWithContext(ctx, stmt, values...).Exec()
}
