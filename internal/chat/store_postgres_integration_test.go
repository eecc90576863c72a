package chat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when RIPPLE_DATABASE_URL is set.
// This keeps local "go test ./..." fast and deterministic without Postgres.

func TestPostgresStoreConcurrentAddMemberPositions(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropTestSchema(t, pool, schema) })

	mustApplyTestSchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	id, err := NewID(now)
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	conv := &Conversation{
		ID:        id,
		Kind:      KindGroup,
		Title:     "concurrency",
		OwnerID:   "owner",
		Members:   []string{"owner"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	const adds = 8
	errCh := make(chan error, adds)

	var wg sync.WaitGroup
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			added, err := store.AddMember(ctx, conv.ID, fmt.Sprintf("user-%d", i), time.Now().UTC())
			if err != nil {
				errCh <- fmt.Errorf("add user-%d: %w", i, err)
				return
			}
			if !added {
				errCh <- fmt.Errorf("add user-%d: reported not added", i)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}

	members := pgIdent(schema, "conversation_members")
	rows, err := pool.Query(ctx,
		`SELECT position FROM `+members+` WHERE conversation_id = $1 ORDER BY position ASC`,
		conv.ID,
	)
	if err != nil {
		t.Fatalf("query positions: %v", err)
	}
	defer rows.Close()

	var positions []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			t.Fatalf("scan position: %v", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	if len(positions) != adds+1 {
		t.Fatalf("member rows = %d, want %d", len(positions), adds+1)
	}
	for i, p := range positions {
		if p != i {
			t.Fatalf("positions = %v, want a gapless unique sequence from 0", positions)
		}
	}
}

func TestPostgresStoreAddMemberIdempotentAndMissing(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropTestSchema(t, pool, schema) })

	mustApplyTestSchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	id, err := NewID(now)
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	conv := &Conversation{
		ID:        id,
		Kind:      KindGroup,
		Title:     "idempotency",
		OwnerID:   "owner",
		Members:   []string{"owner"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	added, err := store.AddMember(ctx, conv.ID, "u2", now)
	if err != nil || !added {
		t.Fatalf("first add = (%v, %v), want (true, nil)", added, err)
	}
	added, err = store.AddMember(ctx, conv.ID, "u2", now)
	if err != nil || added {
		t.Fatalf("repeat add = (%v, %v), want (false, nil)", added, err)
	}

	if _, err := store.AddMember(ctx, "missing-conversation", "u2", now); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("missing conversation err = %v, want ErrNoConversation", err)
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("RIPPLE_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: RIPPLE_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse RIPPLE_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("random schema suffix: %v", err)
	}
	schema := "ripple_it_" + hex.EncodeToString(b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropTestSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplyTestSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	conversations := pgIdent(schema, "conversations")
	members := pgIdent(schema, "conversation_members")

	// Minimal tables required by these tests.
	// Must remain semantically aligned with db/schema.sql.
	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id              text PRIMARY KEY,
  kind            text NOT NULL CHECK (kind IN ('direct', 'group')),
  title           text,
  description     text,
  owner_id        text,
  discoverable    boolean NOT NULL DEFAULT false,
  last_message_id text,
  created_at      timestamptz NOT NULL,
  updated_at      timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS %s (
  conversation_id text NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  user_id         text NOT NULL,
  position        integer NOT NULL,
  joined_at       timestamptz NOT NULL,
  PRIMARY KEY (conversation_id, user_id)
);
`, conversations, members, conversations)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}
