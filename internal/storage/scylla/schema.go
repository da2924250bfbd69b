package scylla

import (
	"context"
	"fmt"
)

// DefaultKeyspace holds the crawl tables when none is configured.
const DefaultKeyspace = "music"

// EnsureSchema creates the keyspace and crawl tables when they are missing.
func EnsureSchema(ctx context.Context, cfg Config) error {
	cluster, err := newCluster(cfg, "system")
	if err != nil {
		return err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("create bootstrap session: %w", err)
	}
	defer session.Close()

	return createSchema(ctx, &CQLSession{session: session}, keyspaceOrDefault(cfg.Keyspace), cfg.ReplicationFactor)
}

func createSchema(ctx context.Context, s Session, keyspace string, replicationFactor int) error {
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	for _, stmt := range schemaStatements(keyspace, replicationFactor) {
		if err := s.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func schemaStatements(keyspace string, replicationFactor int) []string {
	return []string{
		fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
		 WITH replication = {
			 'class' : 'SimpleStrategy',
			 'replication_factor' : %d
		 }`, keyspace, replicationFactor),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.artist_tasks (
			artist_id text PRIMARY KEY,
			status text
		)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.artists (
			id text PRIMARY KEY,
			name text
		)`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.tracks (
			id text PRIMARY KEY,
			name text,
			preview_url text,
			artists list<text>
		)`, keyspace),
	}
}

func keyspaceOrDefault(k string) string {
	if k == "" {
		return DefaultKeyspace
	}
	return k
}
