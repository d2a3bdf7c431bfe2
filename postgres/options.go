package postgres

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// validIdentifier matches valid PostgreSQL unquoted identifiers.
// Must start with letter or underscore, followed by letters, digits, or underscores.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MessageModelVersion is written to the version column of every message row.
const MessageModelVersion = 1

// SSLMode represents PostgreSQL SSL connection modes.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"     // No SSL
	SSLModeAllow      SSLMode = "allow"       // Try non-SSL first, then SSL
	SSLModePrefer     SSLMode = "prefer"      // Try SSL first, then non-SSL (default)
	SSLModeRequire    SSLMode = "require"     // Only SSL (no certificate verification)
	SSLModeVerifyCA   SSLMode = "verify-ca"   // SSL with CA verification
	SSLModeVerifyFull SSLMode = "verify-full" // SSL with CA and hostname verification
)

// Option is a functional option for configuring a Queue.
type Option func(*options)

type options struct {
	host                            string
	port                            int
	user                            string
	password                        string
	database                        string
	sslMode                         SSLMode
	poolMaxConnections              *int32
	poolMinConnections              *int32
	poolMinIdleConnections          *int32
	poolMaxConnectionLifetime       *time.Duration
	poolMaxConnectionIdleTime       *time.Duration
	poolHealthCheckPeriod           *time.Duration
	poolMaxConnectionLifetimeJitter *time.Duration
	messagesTable                   string
	messageRetention                time.Duration
	pollInterval                    time.Duration
	ttlCleanupInterval              *time.Duration
}

func newOptions() *options {
	defaultCleanupInterval := time.Hour

	return &options{
		host:               "localhost",
		port:               5432,
		sslMode:            SSLModePrefer,
		messagesTable:      "comlink_messages",
		messageRetention:   4 * 24 * time.Hour,
		pollInterval:       time.Second,
		ttlCleanupInterval: &defaultCleanupInterval,
	}
}

func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

func WithUser(user string) Option {
	return func(o *options) { o.user = user }
}

func WithPassword(password string) Option {
	return func(o *options) { o.password = password }
}

func WithDatabase(database string) Option {
	return func(o *options) { o.database = database }
}

func WithSSLMode(mode SSLMode) Option {
	return func(o *options) { o.sslMode = mode }
}

func WithPoolMaxConnections(n int32) Option {
	return func(o *options) { o.poolMaxConnections = &n }
}

func WithPoolMinConnections(n int32) Option {
	return func(o *options) { o.poolMinConnections = &n }
}

func WithPoolMinIdleConnections(n int32) Option {
	return func(o *options) { o.poolMinIdleConnections = &n }
}

func WithPoolMaxConnectionLifetime(d time.Duration) Option {
	return func(o *options) { o.poolMaxConnectionLifetime = &d }
}

func WithPoolMaxConnectionIdleTime(d time.Duration) Option {
	return func(o *options) { o.poolMaxConnectionIdleTime = &d }
}

func WithPoolHealthCheckPeriod(d time.Duration) Option {
	return func(o *options) { o.poolHealthCheckPeriod = &d }
}

func WithPoolMaxConnectionLifetimeJitter(d time.Duration) Option {
	return func(o *options) { o.poolMaxConnectionLifetimeJitter = &d }
}

// WithMessagesTable sets the name of the table holding messages. Several
// queues may share one table. Default: comlink_messages.
func WithMessagesTable(name string) Option {
	return func(o *options) { o.messagesTable = name }
}

// WithMessageRetention sets how long an unremoved message is kept. Expired
// messages are never delivered. Default: 4 days.
func WithMessageRetention(d time.Duration) Option {
	return func(o *options) { o.messageRetention = d }
}

// WithPollInterval sets how often Take looks for visible messages while
// waiting. Default: 1 second.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithTTLCleanupInterval sets how often the background goroutine runs to
// physically delete expired rows. Defaults to 1 hour. The duration must be
// greater than zero.
func WithTTLCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.ttlCleanupInterval = &d }
}

// WithTTLCleanupDisabled disables the background TTL cleanup goroutine.
// When disabled, expired rows are excluded from reads but never physically
// deleted. Useful in tests or environments that handle cleanup externally.
func WithTTLCleanupDisabled() Option {
	return func(o *options) { o.ttlCleanupInterval = nil }
}

type dbRow struct {
	DataType   string
	IsNullable string
}

func (o *options) validate() error {
	if o.port < 1 || o.port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", o.port)
	}

	if o.user == "" {
		return errors.New("user is required")
	}

	if o.database == "" {
		return errors.New("database is required")
	}

	if !o.sslMode.isValid() {
		return fmt.Errorf("invalid SSL mode: %s", o.sslMode)
	}

	if err := validateTableName(o.messagesTable); err != nil {
		return fmt.Errorf("invalid messages table name: %w", err)
	}

	if o.messageRetention < time.Minute {
		return errors.New("message retention must be at least one minute")
	}

	if o.pollInterval < 10*time.Millisecond || o.pollInterval > 20*time.Second {
		return errors.New("poll interval must be between 10 milliseconds and 20 seconds")
	}

	if o.ttlCleanupInterval != nil && *o.ttlCleanupInterval <= 0 {
		return errors.New("TTL cleanup interval must be positive")
	}

	return nil
}

func validateTableName(name string) error {
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("table name %q contains invalid characters", name)
	}

	return nil
}

// isValid returns true if the SSL mode is a valid PostgreSQL SSL mode.
func (s SSLMode) isValid() bool {
	switch s {
	case SSLModeDisable, SSLModeAllow, SSLModePrefer, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	default:
		return false
	}
}

func (o *options) connectionString() string {
	host := net.JoinHostPort(o.host, strconv.Itoa(o.port))

	user := url.QueryEscape(o.user)

	if o.password != "" {
		user += ":" + url.QueryEscape(o.password)
	}

	return fmt.Sprintf("postgres://%s@%s/%s?sslmode=%s", user, host, o.database, o.sslMode)
}

func (o *options) createStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id text PRIMARY KEY, version SMALLINT NOT NULL, queue text NOT NULL, body text NOT NULL, attrs JSONB NOT NULL, visible_at TIMESTAMP WITH TIME ZONE NOT NULL, receipt_token text NULL, receive_count INTEGER NOT NULL, created TIMESTAMP WITH TIME ZONE NOT NULL, expires_at TIMESTAMP WITH TIME ZONE NOT NULL);`, o.messagesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_queue_visible_idx ON %s (queue, visible_at);`, o.messagesTable, o.messagesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_expires_at_idx ON %s (expires_at);`, o.messagesTable, o.messagesTable),
	}
}

func (o *options) dropStatements() []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", o.messagesTable),
	}
}

func (o *options) verifyCurrentDatabaseVersion(actualRows map[string]*dbRow) error {
	expectedRows := map[string]*dbRow{
		o.messagesTable + ".id":            {DataType: "text", IsNullable: "NO"},
		o.messagesTable + ".version":       {DataType: "smallint", IsNullable: "NO"},
		o.messagesTable + ".queue":         {DataType: "text", IsNullable: "NO"},
		o.messagesTable + ".body":          {DataType: "text", IsNullable: "NO"},
		o.messagesTable + ".attrs":         {DataType: "jsonb", IsNullable: "NO"},
		o.messagesTable + ".visible_at":    {DataType: "timestamp with time zone", IsNullable: "NO"},
		o.messagesTable + ".receipt_token": {DataType: "text", IsNullable: "YES"},
		o.messagesTable + ".receive_count": {DataType: "integer", IsNullable: "NO"},
		o.messagesTable + ".created":       {DataType: "timestamp with time zone", IsNullable: "NO"},
		o.messagesTable + ".expires_at":    {DataType: "timestamp with time zone", IsNullable: "NO"},
	}

	for id, expectedRow := range expectedRows {
		actual, ok := actualRows[id]
		if !ok {
			return fmt.Errorf("expected row '%s' not found in current database schema", id)
		}

		if !strings.EqualFold(actual.DataType, expectedRow.DataType) {
			return fmt.Errorf("data type mismatch for '%s': expected %s, got %s", id, expectedRow.DataType, actual.DataType)
		}

		if !strings.EqualFold(actual.IsNullable, expectedRow.IsNullable) {
			return fmt.Errorf("nullability mismatch for '%s': expected %s, got %s", id, expectedRow.IsNullable, actual.IsNullable)
		}
	}

	return nil
}
