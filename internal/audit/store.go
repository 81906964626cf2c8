// Package audit implements the optional signing audit log.
//
// When a database is configured, every signing run and every invoice's
// terminal state is recorded. Each run row carries a SHA-256 checksum of its
// canonicalized JSON body (RFC 8785) so records are tamper-evident. Audit
// failures must never abort a signing flow; callers log and move on.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/esign-networks/invoice-signer/app/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunRecord is the audit entry for one signing run.
type RunRecord struct {
	RunID             uuid.UUID `json:"runId"`
	DocumentID        string    `json:"documentId"`
	CertificateSerial string    `json:"certificateSerial"`
	Classification    string    `json:"classification"`
	SignedCount       int       `json:"signedCount"`
	Total             int       `json:"total"`
	FailedLabels      []string  `json:"failedLabels,omitempty"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
}

// InvoiceRecord is the audit entry for one invoice's terminal state.
type InvoiceRecord struct {
	InvoiceID     string `json:"invoiceId"`
	State         string `json:"state"`
	FailureReason string `json:"failureReason,omitempty"`
}

// Store writes audit records to PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore connects to the audit database and applies pending migrations.
func NewStore(ctx context.Context, cfg *config.ClientEnvironment, logger *slog.Logger) (*Store, error) {
	if err := migrate(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("failed to migrate audit schema: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// migrate applies the embedded goose migrations through the database/sql
// pgx driver (goose does not speak pgx pools).
func migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RecordRun writes one signing run and its per-invoice outcomes.
func (s *Store) RecordRun(ctx context.Context, run RunRecord, invoices []InvoiceRecord) error {
	checksum, err := recordChecksum(run)
	if err != nil {
		return fmt.Errorf("failed to checksum run record: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO signing_runs
			(run_id, document_id, certificate_serial, classification,
			 signed_count, total, failed_labels, started_at, finished_at, checksum)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.RunID, run.DocumentID, run.CertificateSerial, run.Classification,
		run.SignedCount, run.Total, run.FailedLabels, run.StartedAt, run.FinishedAt, checksum,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signing run: %w", err)
	}

	for _, inv := range invoices {
		_, err = tx.Exec(ctx,
			`INSERT INTO signing_run_invoices
				(run_id, invoice_id, state, failure_reason)
			 VALUES ($1, $2, $3, $4)`,
			run.RunID, inv.InvoiceID, inv.State, inv.FailureReason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert invoice outcome: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}

	s.logger.Debug("signing run recorded",
		slog.String("run_id", run.RunID.String()),
		slog.String("checksum", checksum),
	)

	return nil
}

// recordChecksum returns the SHA-256 hex digest of the record's canonical
// JSON form (RFC 8785), so equal records always hash identically.
func recordChecksum(record any) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
