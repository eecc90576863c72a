package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
//   - PostgresStore does NOT own the pgx pool. The caller must close the pool.
//   - Close() is therefore a no-op.
//
// Schema lives in db/schema.sql; migrations are managed outside the binary.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "ripple").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "ripple",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// CreateConversation inserts the conversation row and its member rows.
func (s *PostgresStore) CreateConversation(ctx context.Context, c *Conversation) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	conversations := pgIdent(s.schema, "conversations")
	members := pgIdent(s.schema, "conversation_members")

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+conversations+` (id, kind, title, description, owner_id, discoverable, last_message_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9)`,
		c.ID, string(c.Kind), c.Title, c.Description, c.OwnerID, c.Discoverable, c.LastMessageID, c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return err
	}

	for i, m := range c.Members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+members+` (conversation_id, user_id, position, joined_at)
			 VALUES ($1, $2, $3, $4)`,
			c.ID, m, i, c.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetConversation loads a conversation with its members in insertion order.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conversations := pgIdent(s.schema, "conversations")

	c := &Conversation{}
	var kind string
	var title, description, ownerID, lastMessageID *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, title, description, owner_id, discoverable, last_message_id, created_at, updated_at
		   FROM `+conversations+`
		  WHERE id = $1`,
		id,
	).Scan(&c.ID, &kind, &title, &description, &ownerID, &c.Discoverable, &lastMessageID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoConversation
	}
	if err != nil {
		return nil, err
	}

	c.Kind = Kind(kind)
	c.Title = deref(title)
	c.Description = deref(description)
	c.OwnerID = deref(ownerID)
	c.LastMessageID = deref(lastMessageID)

	c.Members, err = s.membersOf(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindDirect returns the direct conversation whose member set is exactly {a, b}.
func (s *PostgresStore) FindDirect(ctx context.Context, a, b string) (*Conversation, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conversations := pgIdent(s.schema, "conversations")
	members := pgIdent(s.schema, "conversation_members")

	// Exact set match: two rows total, both in {a, b}. No subset/superset match.
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT c.id
		   FROM `+conversations+` c
		   JOIN `+members+` m ON m.conversation_id = c.id
		  WHERE c.kind = 'direct'
		  GROUP BY c.id
		 HAVING COUNT(*) = 2
		    AND COUNT(*) FILTER (WHERE m.user_id IN ($1, $2)) = 2`,
		a, b,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoConversation
	}
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}

// ListConversations returns userID's conversations, most recent activity first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conversations := pgIdent(s.schema, "conversations")
	members := pgIdent(s.schema, "conversation_members")

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.kind, c.title, c.description, c.owner_id, c.discoverable, c.last_message_id, c.created_at, c.updated_at
		   FROM `+conversations+` c
		   JOIN `+members+` m ON m.conversation_id = c.id
		  WHERE m.user_id = $1
		  ORDER BY c.updated_at DESC, c.id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c := &Conversation{}
		var kind string
		var title, description, ownerID, lastMessageID *string
		if err := rows.Scan(&c.ID, &kind, &title, &description, &ownerID, &c.Discoverable, &lastMessageID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Kind = Kind(kind)
		c.Title = deref(title)
		c.Description = deref(description)
		c.OwnerID = deref(ownerID)
		c.LastMessageID = deref(lastMessageID)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range out {
		if c.Members, err = s.membersOf(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateConversation rewrites mutable attributes (title, description, discoverability).
func (s *PostgresStore) UpdateConversation(ctx context.Context, c *Conversation) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conversations := pgIdent(s.schema, "conversations")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+conversations+`
		    SET title = $2, description = $3, discoverable = $4, updated_at = $5
		  WHERE id = $1`,
		c.ID, c.Title, c.Description, c.Discoverable, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoConversation
	}
	return nil
}

// AddMember idempotently appends userID; reports whether a row was inserted.
func (s *PostgresStore) AddMember(ctx context.Context, conversationID, userID string, now time.Time) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	conversations := pgIdent(s.schema, "conversations")
	members := pgIdent(s.schema, "conversation_members")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the conversation row first. Two concurrent adds would otherwise
	// both read the same MAX(position) and insert duplicate positions,
	// making member display order nondeterministic.
	var locked string
	err = tx.QueryRow(ctx,
		`SELECT id FROM `+conversations+` WHERE id = $1 FOR UPDATE`,
		conversationID,
	).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNoConversation
	}
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO `+members+` (conversation_id, user_id, position, joined_at)
		 SELECT $1, $2, COALESCE(MAX(position) + 1, 0), $3
		   FROM `+members+`
		  WHERE conversation_id = $1
		 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		conversationID, userID, now,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+conversations+` SET updated_at = $2 WHERE id = $1`,
		conversationID, now,
	); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// RemoveMember idempotently removes userID; reports whether a row was deleted.
func (s *PostgresStore) RemoveMember(ctx context.Context, conversationID, userID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	members := pgIdent(s.schema, "conversation_members")

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+members+` WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AppendMessage inserts one message row.
func (s *PostgresStore) AppendMessage(ctx context.Context, m *Message) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := pgIdent(s.schema, "messages")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (id, conversation_id, sender_id, kind, body, reply_to_id, read_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		m.ID, m.ConversationID, m.SenderID, string(m.Kind), m.Body, m.ReplyToID, m.ReadBy, m.CreatedAt,
	)
	return err
}

// GetMessage loads one message scoped to a conversation.
func (s *PostgresStore) GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")

	m := &Message{}
	var kind string
	var replyTo *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, conversation_id, sender_id, kind, body, reply_to_id, read_by, created_at
		   FROM `+messages+`
		  WHERE conversation_id = $1 AND id = $2`,
		conversationID, messageID,
	).Scan(&m.ID, &m.ConversationID, &m.SenderID, &kind, &m.Body, &replyTo, &m.ReadBy, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMessage
	}
	if err != nil {
		return nil, err
	}
	m.Kind = MessageKind(kind)
	m.ReplyToID = deref(replyTo)
	return m, nil
}

// ListMessagesPage returns the page-th newest window, newest first.
func (s *PostgresStore) ListMessagesPage(ctx context.Context, conversationID string, page, limit int) ([]*Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, sender_id, kind, body, reply_to_id, read_by, created_at
		   FROM `+messages+`
		  WHERE conversation_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		conversationID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Message, 0, limit)
	for rows.Next() {
		m := &Message{}
		var kind string
		var replyTo *string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &kind, &m.Body, &replyTo, &m.ReadBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = MessageKind(kind)
		m.ReplyToID = deref(replyTo)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkConversationRead is a single conditional update-many so concurrent
// readers cannot lose each other's receipts.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	messages := pgIdent(s.schema, "messages")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+messages+`
		    SET read_by = array_append(read_by, $2)
		  WHERE conversation_id = $1
		    AND sender_id <> $2
		    AND NOT ($2 = ANY(read_by))`,
		conversationID, userID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnread counts foreign messages not yet read by userID.
func (s *PostgresStore) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	messages := pgIdent(s.schema, "messages")

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*)
		   FROM `+messages+`
		  WHERE conversation_id = $1
		    AND sender_id <> $2
		    AND NOT ($2 = ANY(read_by))`,
		conversationID, userID,
	).Scan(&n)
	return n, err
}

// SetLastMessage updates the weak last-message reference and activity time.
func (s *PostgresStore) SetLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conversations := pgIdent(s.schema, "conversations")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+conversations+`
		    SET last_message_id = $2, updated_at = $3
		  WHERE id = $1`,
		conversationID, messageID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoConversation
	}
	return nil
}

func (s *PostgresStore) membersOf(ctx context.Context, conversationID string) ([]string, error) {
	members := pgIdent(s.schema, "conversation_members")

	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM `+members+` WHERE conversation_id = $1 ORDER BY position ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
