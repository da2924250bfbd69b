// Package scylla persists tasks, artists and tracks in a Scylla or Cassandra keyspace.
package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/JakeFAU/catalog-crawler/internal/bulkwrite"
)

// Config describes how to reach the cluster.
type Config struct {
	Hosts                    []string
	Port                     int
	Keyspace                 string
	Consistency              string
	ReplicationFactor        int
	Timeout                  time.Duration
	Username                 string
	Password                 string
	DisableInitialHostLookup bool
}

// Session is the narrow query surface the stores depend on.
type Session interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, stmt string, args ...any) error
	// ExecCAS runs a lightweight transaction. dest receives the current row
	// values when the condition was not applied.
	ExecCAS(ctx context.Context, stmt string, args []any, dest ...any) (bool, error)
	// SelectStrings returns the single text column of every row.
	SelectStrings(ctx context.Context, stmt string, args ...any) ([]string, error)
	// Batch applies stmt once per row in one unlogged batch.
	Batch(ctx context.Context, stmt string, rows [][]any, consistency bulkwrite.Consistency) error
}

// CQLSession adapts *gocql.Session to Session.
type CQLSession struct {
	session *gocql.Session
}

// Open creates a session bound to cfg.Keyspace.
func Open(cfg Config) (*CQLSession, error) {
	cluster, err := newCluster(cfg, cfg.Keyspace)
	if err != nil {
		return nil, err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("create scylla session: %w", err)
	}
	return &CQLSession{session: session}, nil
}

func newCluster(cfg Config, keyspace string) (*gocql.ClusterConfig, error) {
	if len(cfg.Hosts) == 0 {
		return nil, errors.New("scylla hosts are required")
	}
	consistency, err := gocql.ParseConsistencyWrapper(consistencyOrDefault(cfg.Consistency))
	if err != nil {
		return nil, fmt.Errorf("parse scylla consistency: %w", err)
	}
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Keyspace = keyspace
	cluster.Consistency = consistency
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	cluster.DisableInitialHostLookup = cfg.DisableInitialHostLookup
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	return cluster, nil
}

func consistencyOrDefault(c string) string {
	if c == "" {
		return string(bulkwrite.ConsistencyQuorum)
	}
	return c
}

// Close releases the underlying connections.
func (s *CQLSession) Close() {
	s.session.Close()
}

// Exec implements Session.
func (s *CQLSession) Exec(ctx context.Context, stmt string, args ...any) error {
	return s.session.Query(stmt, args...).WithContext(ctx).Exec()
}

// ExecCAS implements Session.
func (s *CQLSession) ExecCAS(ctx context.Context, stmt string, args []any, dest ...any) (bool, error) {
	return s.session.Query(stmt, args...).
		WithContext(ctx).
		SerialConsistency(gocql.Serial).
		ScanCAS(dest...)
}

// SelectStrings implements Session.
func (s *CQLSession) SelectStrings(ctx context.Context, stmt string, args ...any) ([]string, error) {
	iter := s.session.Query(stmt, args...).WithContext(ctx).Iter()
	scanner := iter.Scanner()
	var out []string
	for scanner.Next() {
		var v string
		if err := scanner.Scan(&v); err != nil {
			_ = iter.Close()
			return nil, err
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Batch implements Session.
func (s *CQLSession) Batch(ctx context.Context, stmt string, rows [][]any, consistency bulkwrite.Consistency) error {
	level, err := gocql.ParseConsistencyWrapper(consistencyOrDefault(string(consistency)))
	if err != nil {
		return fmt.Errorf("parse batch consistency: %w", err)
	}
	batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	batch.SetConsistency(level)
	for _, row := range rows {
		batch.Query(stmt, row...)
	}
	return s.session.ExecuteBatch(batch)
}
