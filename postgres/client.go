package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/slackmgr/comlink"
	"github.com/slackmgr/types"
)

var errNotConnected = errors.New("queue is not connected")

// pool defines the interface for database operations.
// This interface is satisfied by *pgxpool.Pool and can be mocked for testing.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
	Ping(ctx context.Context) error
}

// Queue is a PostgreSQL-backed [comlink.Queue]. Messages are rows in a shared
// table, claimed with SELECT ... FOR UPDATE SKIP LOCKED so concurrent
// consumers never receive the same delivery.
type Queue struct {
	conn      pool
	queueName string
	opts      *options
	logger    types.Logger
	cancelTTL context.CancelFunc
}

var (
	_ comlink.Queue             = (*Queue)(nil)
	_ comlink.VisibilityChanger = (*Queue)(nil)
)

// New creates a Queue for queueName. Call [Queue.Connect] and [Queue.Init]
// before use.
func New(queueName string, logger types.Logger, opts ...Option) *Queue {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	logger = logger.
		WithField("plugin", "postgres").
		WithField("queue_name", queueName)

	return &Queue{queueName: queueName, opts: o, logger: logger}
}

func (q *Queue) Connect(ctx context.Context) error {
	// Close existing connection if any to prevent leaks
	if q.conn != nil {
		q.conn.Close()
		q.conn = nil
	}

	if q.queueName == "" {
		return errors.New("queue name cannot be empty")
	}

	if err := q.opts.validate(); err != nil {
		return fmt.Errorf("invalid Postgres db configuration: %w", err)
	}

	config, err := pgxpool.ParseConfig(q.opts.connectionString())
	if err != nil {
		return fmt.Errorf("failed to parse Postgres db connection string: %w", err)
	}

	if q.opts.poolMaxConnections != nil {
		config.MaxConns = *q.opts.poolMaxConnections
	}

	if q.opts.poolMinConnections != nil {
		config.MinConns = *q.opts.poolMinConnections
	}

	if q.opts.poolMinIdleConnections != nil {
		config.MinIdleConns = *q.opts.poolMinIdleConnections
	}

	if q.opts.poolMaxConnectionLifetime != nil {
		config.MaxConnLifetime = *q.opts.poolMaxConnectionLifetime
	}

	if q.opts.poolMaxConnectionIdleTime != nil {
		config.MaxConnIdleTime = *q.opts.poolMaxConnectionIdleTime
	}

	if q.opts.poolHealthCheckPeriod != nil {
		config.HealthCheckPeriod = *q.opts.poolHealthCheckPeriod
	}

	if q.opts.poolMaxConnectionLifetimeJitter != nil {
		config.MaxConnLifetimeJitter = *q.opts.poolMaxConnectionLifetimeJitter
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create new Postgres connection pool: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping Postgres db: %w", err)
	}

	q.conn = conn

	return nil
}

func (q *Queue) Close(_ context.Context) error {
	if q.cancelTTL != nil {
		q.cancelTTL()
		q.cancelTTL = nil
	}

	if q.conn == nil {
		return nil
	}

	q.conn.Close()

	q.conn = nil

	return nil
}

// Init creates the messages table and its indexes if they do not exist,
// optionally verifies the column layout, and starts the background TTL
// cleanup goroutine.
func (q *Queue) Init(ctx context.Context, skipSchemaValidation bool) error {
	if q.conn == nil {
		return errNotConnected
	}

	tx, err := q.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin init transaction: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }() // No-op if committed

	for _, sql := range q.opts.createStatements() {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to execute create statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit init transaction: %w", err)
	}

	if !skipSchemaValidation {
		if err := q.verifySchema(ctx); err != nil {
			return err
		}
	}

	if q.cancelTTL == nil && q.opts.ttlCleanupInterval != nil {
		ttlCtx, cancel := context.WithCancel(context.Background())
		q.cancelTTL = cancel

		//nolint:contextcheck // The cleanup goroutine outlives the Init call.
		go q.runTTLCleanup(ttlCtx)
	}

	return nil
}

func (q *Queue) verifySchema(ctx context.Context) error {
	query := "SELECT table_name, column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = 'public' ORDER BY ordinal_position"

	rows, err := q.conn.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query information schema: %w", err)
	}

	defer rows.Close()

	infoRows := map[string]*dbRow{}

	for rows.Next() {
		var table, column string
		infoRow := &dbRow{}

		if err := rows.Scan(&table, &column, &infoRow.DataType, &infoRow.IsNullable); err != nil {
			return fmt.Errorf("failed to scan row from information schema: %w", err)
		}

		infoRows[table+"."+column] = infoRow
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating over rows from information schema: %w", err)
	}

	if err := q.opts.verifyCurrentDatabaseVersion(infoRows); err != nil {
		return fmt.Errorf("failed to verify current database version: %w", err)
	}

	return nil
}

// DropAllData drops the messages table, removing every queue stored in it.
func (q *Queue) DropAllData(ctx context.Context) error {
	if q.conn == nil {
		return errNotConnected
	}

	tx, err := q.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin drop tables transaction: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }() // No-op if committed

	for _, sql := range q.opts.dropStatements() {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to execute drop statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit drop tables transaction: %w", err)
	}

	return nil
}

// Purge deletes every message of this queue.
func (q *Queue) Purge(ctx context.Context) error {
	if q.conn == nil {
		return errNotConnected
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE queue = $1", q.opts.messagesTable)

	if _, err := q.conn.Exec(ctx, sql, q.queueName); err != nil {
		return fmt.Errorf("failed to purge queue in Postgres db: %w", err)
	}

	return nil
}

// Name returns the queue name supplied to [New].
func (q *Queue) Name() string {
	return q.queueName
}

// Put inserts a message and returns its ID. Group and deduplication IDs are
// ignored.
func (q *Queue) Put(ctx context.Context, body string, opts ...comlink.PutOption) (string, error) {
	if q.conn == nil {
		return "", errNotConnected
	}

	if body == "" {
		return "", errors.New("body cannot be empty")
	}

	o := comlink.NewPutOptions(opts...)

	if o.DelaySeconds < 0 {
		return "", errors.New("delay cannot be negative")
	}

	attrs := o.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}

	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message attributes: %w", err)
	}

	id := uuid.NewString()

	sql := fmt.Sprintf("INSERT INTO %s (id, version, queue, body, attrs, visible_at, receive_count, created, expires_at) "+
		"VALUES ($1, $2, $3, $4, $5, NOW() + make_interval(secs => $6::double precision), 0, NOW(), NOW() + make_interval(secs => $7::double precision))",
		q.opts.messagesTable)

	if _, err := q.conn.Exec(ctx, sql, id, MessageModelVersion, q.queueName, body, string(attrsJSON), float64(o.DelaySeconds), q.opts.messageRetention.Seconds()); err != nil {
		return "", fmt.Errorf("failed to insert message into Postgres db: %w", err)
	}

	q.logger.WithField("message_id", id).Debug("Postgres message stored")

	return id, nil
}

// Take claims up to maxMessages visible messages, hiding each for
// visibilityTimeoutSeconds. When nothing is visible Take polls at the
// configured interval until waitTimeSeconds have passed. Cancelling ctx
// ends the wait early.
func (q *Queue) Take(ctx context.Context, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds int32) ([]*comlink.Message, error) {
	if q.conn == nil {
		return nil, errNotConnected
	}

	if maxMessages < 1 {
		return nil, errors.New("max messages must be at least 1")
	}

	deadline := time.Now().Add(time.Duration(waitTimeSeconds) * time.Second)

	for {
		messages, err := q.claim(ctx, maxMessages, visibilityTimeoutSeconds)
		if err != nil {
			return nil, err
		}

		remaining := time.Until(deadline)

		if len(messages) > 0 || remaining <= 0 {
			return messages, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(q.opts.pollInterval, remaining)):
		}
	}
}

func (q *Queue) claim(ctx context.Context, maxMessages, visibilityTimeoutSeconds int32) ([]*comlink.Message, error) {
	token := uuid.NewString()

	sql := fmt.Sprintf(`WITH next AS (
	SELECT id FROM %[1]s
	WHERE queue = $1 AND visible_at <= NOW() AND expires_at > NOW()
	ORDER BY visible_at, created
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
UPDATE %[1]s m
SET visible_at = NOW() + make_interval(secs => $3::double precision), receipt_token = $4, receive_count = m.receive_count + 1
FROM next
WHERE m.id = next.id
RETURNING m.id, m.body, m.attrs, m.receive_count`, q.opts.messagesTable)

	rows, err := q.conn.Query(ctx, sql, q.queueName, maxMessages, float64(visibilityTimeoutSeconds), token)
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages in Postgres db: %w", err)
	}

	defer rows.Close()

	var messages []*comlink.Message

	for rows.Next() {
		var (
			id, body     string
			attrsJSON    []byte
			receiveCount int32
		)

		if err := rows.Scan(&id, &body, &attrsJSON, &receiveCount); err != nil {
			return nil, fmt.Errorf("failed to scan claimed message: %w", err)
		}

		var attrs map[string]string

		if err := json.Unmarshal(attrsJSON, &attrs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message attributes: %w", err)
		}

		messages = append(messages, &comlink.Message{
			ID:            id,
			Body:          body,
			ReceiptHandle: buildReceiptHandle(id, token),
			Attributes:    attrs,
			ReceiveCount:  int(receiveCount),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over claimed messages: %w", err)
	}

	return messages, nil
}

// Remove deletes the message if receiptHandle belongs to its latest delivery.
func (q *Queue) Remove(ctx context.Context, receiptHandle string) error {
	if q.conn == nil {
		return errNotConnected
	}

	id, token, err := parseReceiptHandle(receiptHandle)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND queue = $2 AND receipt_token = $3", q.opts.messagesTable)

	tag, err := q.conn.Exec(ctx, sql, id, q.queueName, token)
	if err != nil {
		return fmt.Errorf("failed to delete message from Postgres db: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return comlink.ErrInvalidReceiptHandle
	}

	return nil
}

// ChangeVisibility hides the message for timeoutSeconds from now, if
// receiptHandle belongs to its latest delivery.
func (q *Queue) ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int32) error {
	if q.conn == nil {
		return errNotConnected
	}

	id, token, err := parseReceiptHandle(receiptHandle)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("UPDATE %s SET visible_at = NOW() + make_interval(secs => $4::double precision) WHERE id = $1 AND queue = $2 AND receipt_token = $3", q.opts.messagesTable)

	tag, err := q.conn.Exec(ctx, sql, id, q.queueName, token, float64(timeoutSeconds))
	if err != nil {
		return fmt.Errorf("failed to change message visibility in Postgres db: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return comlink.ErrInvalidReceiptHandle
	}

	return nil
}

func buildReceiptHandle(id, token string) string {
	return id + ":" + token
}

func parseReceiptHandle(receiptHandle string) (id, token string, err error) {
	id, token, found := strings.Cut(receiptHandle, ":")
	if !found || id == "" || token == "" {
		return "", "", fmt.Errorf("%w: malformed receipt handle", comlink.ErrInvalidReceiptHandle)
	}

	return id, token, nil
}

func (q *Queue) runTTLCleanup(ctx context.Context) {
	ticker := time.NewTicker(*q.opts.ttlCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.deleteExpiredRows(ctx)
		}
	}
}

func (q *Queue) deleteExpiredRows(ctx context.Context) {
	tag, err := q.conn.Exec(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE expires_at < NOW()", q.opts.messagesTable))
	if err != nil {
		q.logger.Errorf("Failed to delete expired messages: %v", err)
		return
	}

	if tag.RowsAffected() > 0 {
		q.logger.WithField("count", tag.RowsAffected()).Debug("Deleted expired messages")
	}
}
