// Package clickhouse keeps the evaluation audit log in ClickHouse.
// Every quote and availability verdict served from a stored template is
// appended so disputed prices can be traced back to a template version.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EvaluationKind separates quotes from availability checks
type EvaluationKind string

const (
	KindQuote        EvaluationKind = "quote"
	KindAvailability EvaluationKind = "availability"
)

// EvaluationRecord is one row of the audit log
type EvaluationRecord struct {
	ID              uuid.UUID      `ch:"id" json:"id"`
	Kind            EvaluationKind `ch:"kind" json:"kind"`
	BusinessID      string         `ch:"business_id" json:"business_id"`
	TemplateID      string         `ch:"template_id" json:"template_id"`
	TemplateVersion time.Time      `ch:"template_version" json:"template_version"`
	InputHash       string         `ch:"input_hash" json:"input_hash"`

	// Quote result
	Total decimal.Decimal `ch:"total" json:"total"`

	// Availability result
	IsAvailable      bool   `ch:"is_available" json:"is_available"`
	RequiresApproval bool   `ch:"requires_approval" json:"requires_approval"`
	Reason           string `ch:"reason" json:"reason,omitempty"`

	// Served from the memo cache rather than a fresh evaluation
	Cached bool `ch:"cached" json:"cached"`

	EvaluatedAt time.Time `ch:"evaluated_at" json:"evaluated_at"`
}

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "template_rules",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Addr returns the native protocol address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Store is the ClickHouse-backed audit log
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore opens a connection to ClickHouse
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

const createEvaluationLog = `
	CREATE TABLE IF NOT EXISTS evaluation_log (
		id                UUID,
		kind              LowCardinality(String),
		business_id       String,
		template_id       String,
		template_version  DateTime64(9, 'UTC'),
		input_hash        FixedString(64),
		total             Decimal(18, 4),
		is_available      UInt8,
		requires_approval UInt8,
		reason            String,
		cached            UInt8,
		evaluated_at      DateTime64(3, 'UTC')
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(evaluated_at)
	ORDER BY (business_id, template_id, evaluated_at)
`

// Migrate creates the audit table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createEvaluationLog); err != nil {
		return fmt.Errorf("failed to create evaluation_log: %w", err)
	}
	if err := s.conn.Exec(ctx, `ALTER TABLE evaluation_log ADD COLUMN IF NOT EXISTS cached UInt8 AFTER reason`); err != nil {
		return fmt.Errorf("failed to migrate evaluation_log: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT OPERATIONS
// =============================================================================

// RecordEvaluation appends one evaluation to the log
func (s *Store) RecordEvaluation(ctx context.Context, rec *EvaluationRecord) error {
	return s.RecordEvaluations(ctx, []*EvaluationRecord{rec})
}

// RecordEvaluations appends a batch of evaluations
func (s *Store) RecordEvaluations(ctx context.Context, recs []*EvaluationRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO evaluation_log (
			id, kind, business_id, template_id, template_version, input_hash,
			total, is_available, requires_approval, reason, cached, evaluated_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, rec := range recs {
		prepareRecord(rec, time.Now())
		if err := batch.Append(
			rec.ID, string(rec.Kind), rec.BusinessID, rec.TemplateID,
			rec.TemplateVersion, rec.InputHash, rec.Total,
			boolToUInt8(rec.IsAvailable), boolToUInt8(rec.RequiresApproval),
			rec.Reason, boolToUInt8(rec.Cached), rec.EvaluatedAt,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to record evaluations: %w", err)
	}
	return nil
}

// ListRecent returns the newest evaluations for a business's template
func (s *Store) ListRecent(ctx context.Context, businessID, templateID string, limit int) ([]*EvaluationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, kind, business_id, template_id, template_version, input_hash,
			   total, is_available, requires_approval, reason, cached, evaluated_at
		FROM evaluation_log
		WHERE business_id = ? AND template_id = ?
		ORDER BY evaluated_at DESC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, businessID, templateID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var records []*EvaluationRecord
	for rows.Next() {
		var rec EvaluationRecord
		var kind string
		var available, approval, cached uint8
		if err := rows.Scan(
			&rec.ID, &kind, &rec.BusinessID, &rec.TemplateID, &rec.TemplateVersion,
			&rec.InputHash, &rec.Total, &available, &approval, &rec.Reason, &cached, &rec.EvaluatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		rec.Kind = EvaluationKind(kind)
		rec.IsAvailable = available == 1
		rec.RequiresApproval = approval == 1
		rec.Cached = cached == 1
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evaluations: %w", err)
	}
	return records, nil
}

// Prune deletes evaluations older than the retention period
func (s *Store) Prune(ctx context.Context, retentionDays int, now time.Time) error {
	cutoff, err := RetentionCutoff(now, retentionDays)
	if err != nil {
		return err
	}
	if err := s.conn.Exec(ctx, `ALTER TABLE evaluation_log DELETE WHERE evaluated_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune evaluations: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// RetentionCutoff is the oldest instant kept for a retention period in days
func RetentionCutoff(now time.Time, retentionDays int) (time.Time, error) {
	if retentionDays <= 0 {
		return time.Time{}, fmt.Errorf("retention must be at least one day, got %d", retentionDays)
	}
	return now.UTC().AddDate(0, 0, -retentionDays), nil
}

func prepareRecord(rec *EvaluationRecord, now time.Time) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.EvaluatedAt.IsZero() {
		rec.EvaluatedAt = now.UTC()
	}
	rec.Total = rec.Total.Round(4)
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
