/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence contracts (DocumentStore, AttemptStore,
  AuditLog, SeriesStore, TenantStore) using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT (defense in depth):
  The Go interfaces already omit update/delete for attempts and audit rows.
  The schema enforces the same rule a second time with triggers that ABORT
  any UPDATE or DELETE on submission_attempts and audit_log - so even direct
  database access cannot rewrite history.

IMMUTABILITY:
  Documents carry a lock trigger: once the status is signed or later, any
  change to the financial columns is rejected by the database itself.
  UpdateDraft additionally refuses locked documents at the Go layer.

CONCURRENCY:
  Transition is a single conditional UPDATE (status CAS): the row changes
  only if the stored status still matches the expected one. Zero affected
  rows with an existing document means another actor won the race.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers don't
  block, single writer at a time, better crash recovery.

KEY TABLES:
  documents:           Ledger-backed fiscal documents
  submission_attempts: Immutable record of every authority communication
  audit_log:           Immutable record of every state transition
  tenants:             Per-tenant configuration (mutable)
  series_counters:     Gapless per-tenant numbering

USAGE:
  store, err := sqlite.New("./data/fiscal.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - fiscal/store.go: Interface definitions
  - fiscal/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/arvo/fiscal-engine/fiscal"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// lockedStatuses is the SQL fragment naming every post-lock status.
const lockedStatuses = `('signed','queued','submitted','accepted','rejected','error')`

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Fiscal documents (ledger-backed; mutable only pre-lock)
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		series TEXT NOT NULL DEFAULT '',
		sequence_number INTEGER NOT NULL DEFAULT 0,
		direction TEXT NOT NULL,
		gross TEXT NOT NULL,
		tax TEXT NOT NULL,
		net TEXT NOT NULL,
		currency TEXT NOT NULL,
		counterpart_name TEXT NOT NULL DEFAULT '',
		counterpart_tax_id TEXT NOT NULL DEFAULT '',
		counterpart_iban TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		signed_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		external_id TEXT NOT NULL DEFAULT '',
		authority_code TEXT NOT NULL DEFAULT '',
		rectifies_id TEXT NOT NULL DEFAULT '',
		validation_errors TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_tenant_status
		ON documents(tenant_id, status);
	CREATE INDEX IF NOT EXISTS idx_documents_status
		ON documents(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_series_seq
		ON documents(tenant_id, series, sequence_number)
		WHERE sequence_number > 0;

	-- The ledger never forgets: documents cannot be deleted.
	CREATE TRIGGER IF NOT EXISTS documents_no_delete
		BEFORE DELETE ON documents
	BEGIN
		SELECT RAISE(ABORT, 'documents are append-only: delete forbidden');
	END;

	-- Lock guard: once signed, financial fields are frozen. Only status and
	-- the append-linked columns may change.
	CREATE TRIGGER IF NOT EXISTS documents_lock_guard
		BEFORE UPDATE ON documents
		WHEN OLD.status IN ` + lockedStatuses + `
		AND (NEW.gross != OLD.gross OR NEW.tax != OLD.tax OR NEW.net != OLD.net
			OR NEW.currency != OLD.currency
			OR NEW.counterpart_name != OLD.counterpart_name
			OR NEW.counterpart_tax_id != OLD.counterpart_tax_id
			OR NEW.counterpart_iban != OLD.counterpart_iban
			OR NEW.payload != OLD.payload
			OR NEW.series != OLD.series
			OR NEW.sequence_number != OLD.sequence_number
			OR NEW.signed_hash != OLD.signed_hash
			OR NEW.rectifies_id != OLD.rectifies_id)
	BEGIN
		SELECT RAISE(ABORT, 'document is locked: financial fields are immutable');
	END;

	-- Submission attempts (append-only)
	CREATE TABLE IF NOT EXISTS submission_attempts (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		channel TEXT NOT NULL,
		outcome TEXT NOT NULL,
		external_id TEXT NOT NULL DEFAULT '',
		response_ref TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		at TEXT NOT NULL,
		UNIQUE(document_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_document
		ON submission_attempts(document_id, seq);

	CREATE TRIGGER IF NOT EXISTS attempts_no_update
		BEFORE UPDATE ON submission_attempts
	BEGIN
		SELECT RAISE(ABORT, 'submission_attempts is append-only: update forbidden');
	END;
	CREATE TRIGGER IF NOT EXISTS attempts_no_delete
		BEFORE DELETE ON submission_attempts
	BEGIN
		SELECT RAISE(ABORT, 'submission_attempts is append-only: delete forbidden');
	END;

	-- Audit log (append-only, global)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		actor_type TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		cause TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_document
		ON audit_log(document_id, at);
	CREATE INDEX IF NOT EXISTS idx_audit_tenant
		ON audit_log(tenant_id, at);

	CREATE TRIGGER IF NOT EXISTS audit_no_update
		BEFORE UPDATE ON audit_log
	BEGIN
		SELECT RAISE(ABORT, 'audit_log is append-only: update forbidden');
	END;
	CREATE TRIGGER IF NOT EXISTS audit_no_delete
		BEFORE DELETE ON audit_log
	BEGIN
		SELECT RAISE(ABORT, 'audit_log is append-only: delete forbidden');
	END;

	-- Tenant configuration (mutable)
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mode TEXT NOT NULL,
		endpoint TEXT NOT NULL DEFAULT '',
		api_key TEXT NOT NULL DEFAULT '',
		cert_ref TEXT NOT NULL DEFAULT '',
		series TEXT NOT NULL DEFAULT '',
		max_attempts INTEGER NOT NULL DEFAULT 0,
		default_currency TEXT NOT NULL DEFAULT 'EUR',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Gapless per-tenant numbering
	CREATE TABLE IF NOT EXISTS series_counters (
		tenant_id TEXT NOT NULL,
		series TEXT NOT NULL,
		next INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, series)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// mapConstraintErr translates trigger aborts into the domain error kinds.
func mapConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "append-only") || strings.Contains(msg, "locked") {
		return fmt.Errorf("%w: %v", fiscal.ErrImmutable, err)
	}
	return err
}

// =============================================================================
// DOCUMENT STORE (fiscal.DocumentStore interface)
// =============================================================================

func (s *Store) CreateDocument(ctx context.Context, doc *fiscal.FiscalDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO documents (
			id, tenant_id, kind, series, sequence_number, direction,
			gross, tax, net, currency,
			counterpart_name, counterpart_tax_id, counterpart_iban,
			payload, signed_hash, status, external_id, authority_code,
			rectifies_id, validation_errors, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(doc.ID), string(doc.TenantID), string(doc.Kind), doc.Series, doc.SequenceNumber, string(doc.Direction),
		doc.Gross.String(), doc.Tax.String(), doc.Net.String(), doc.Currency,
		doc.CounterpartName, doc.CounterpartTaxID, doc.CounterpartIBAN,
		doc.Payload, doc.SignedHash, string(doc.Status), doc.ExternalID, doc.AuthorityCode,
		string(doc.RectifiesID), strings.Join(doc.ValidationErrors, "\n"),
		doc.CreatedAt.UTC().Format(time.RFC3339Nano), doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return mapConstraintErr(err)
}

func (s *Store) GetDocument(ctx context.Context, id fiscal.DocumentID) (*fiscal.FiscalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectDocument+" WHERE id = ?", string(id))
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fiscal.ErrDocumentNotFound
	}
	return doc, err
}

// UpdateDraft rewrites mutable attributes. The status predicate makes the
// pre-lock check atomic with the write; the lock trigger backs it up.
func (s *Store) UpdateDraft(ctx context.Context, doc *fiscal.FiscalDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE documents SET
			direction = ?, gross = ?, tax = ?, net = ?, currency = ?,
			counterpart_name = ?, counterpart_tax_id = ?, counterpart_iban = ?,
			payload = ?, validation_errors = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ` + lockedStatuses + `
	`
	res, err := s.db.ExecContext(ctx, query,
		string(doc.Direction), doc.Gross.String(), doc.Tax.String(), doc.Net.String(), doc.Currency,
		doc.CounterpartName, doc.CounterpartTaxID, doc.CounterpartIBAN,
		doc.Payload, strings.Join(doc.ValidationErrors, "\n"),
		doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(doc.ID),
	)
	if err != nil {
		return mapConstraintErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if exists, err := s.documentExists(ctx, doc.ID); err != nil {
			return err
		} else if exists {
			return fiscal.ErrImmutable
		}
		return fiscal.ErrDocumentNotFound
	}
	return nil
}

// Transition performs the status CAS, applying append-linked patch fields.
func (s *Store) Transition(ctx context.Context, id fiscal.DocumentID, from, to fiscal.Status, patch fiscal.TransitionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Patch columns are write-once: the CASE guards keep a value already on
	// the row even if a later transition carries a new one.
	query := `
		UPDATE documents SET
			status = ?,
			signed_hash = CASE WHEN signed_hash = '' THEN COALESCE(?, signed_hash) ELSE signed_hash END,
			external_id = CASE WHEN external_id = '' THEN COALESCE(?, external_id) ELSE external_id END,
			authority_code = CASE WHEN authority_code = '' THEN COALESCE(?, authority_code) ELSE authority_code END,
			sequence_number = CASE WHEN sequence_number = 0 THEN COALESCE(?, sequence_number) ELSE sequence_number END,
			updated_at = ?
		WHERE id = ? AND status = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(to),
		nullable(patch.SignedHash), nullable(patch.ExternalID), nullable(patch.AuthorityCode),
		nullableInt(patch.SequenceNumber),
		time.Now().UTC().Format(time.RFC3339Nano),
		string(id), string(from),
	)
	if err != nil {
		return mapConstraintErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if exists, err := s.documentExists(ctx, id); err != nil {
			return err
		} else if exists {
			return fiscal.ErrConcurrencyConflict
		}
		return fiscal.ErrDocumentNotFound
	}
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, tenantID fiscal.TenantID, status fiscal.Status) ([]*fiscal.FiscalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectDocument + " WHERE status = ?"
	args := []any{string(status)}
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, string(tenantID))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*fiscal.FiscalDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *Store) documentExists(ctx context.Context, id fiscal.DocumentID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE id = ?", string(id)).Scan(&count)
	return count > 0, err
}

const selectDocument = `
	SELECT id, tenant_id, kind, series, sequence_number, direction,
		gross, tax, net, currency,
		counterpart_name, counterpart_tax_id, counterpart_iban,
		payload, signed_hash, status, external_id, authority_code,
		rectifies_id, validation_errors, created_at, updated_at
	FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*fiscal.FiscalDocument, error) {
	var (
		doc                             fiscal.FiscalDocument
		gross, tax, net, validationErrs string
		createdAt, updatedAt            string
		id, tenantID, kind, direction   string
		status, rectifiesID             string
	)
	err := row.Scan(
		&id, &tenantID, &kind, &doc.Series, &doc.SequenceNumber, &direction,
		&gross, &tax, &net, &doc.Currency,
		&doc.CounterpartName, &doc.CounterpartTaxID, &doc.CounterpartIBAN,
		&doc.Payload, &doc.SignedHash, &status, &doc.ExternalID, &doc.AuthorityCode,
		&rectifiesID, &validationErrs, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.ID = fiscal.DocumentID(id)
	doc.TenantID = fiscal.TenantID(tenantID)
	doc.Kind = fiscal.DocumentKind(kind)
	doc.Direction = fiscal.Direction(direction)
	doc.Status = fiscal.Status(status)
	doc.RectifiesID = fiscal.DocumentID(rectifiesID)
	doc.Gross, _ = decimal.NewFromString(gross)
	doc.Tax, _ = decimal.NewFromString(tax)
	doc.Net, _ = decimal.NewFromString(net)
	if validationErrs != "" {
		doc.ValidationErrors = strings.Split(validationErrs, "\n")
	}
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &doc, nil
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// =============================================================================
// ATTEMPT STORE (fiscal.AttemptStore interface)
// =============================================================================

func (s *Store) AppendAttempt(ctx context.Context, attempt fiscal.SubmissionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO submission_attempts
			(id, document_id, tenant_id, seq, channel, outcome, external_id, response_ref, duration_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		attempt.ID, string(attempt.DocumentID), string(attempt.TenantID), attempt.Seq,
		attempt.Channel, string(attempt.Outcome), attempt.ExternalID, attempt.ResponseRef,
		attempt.Duration.Milliseconds(), attempt.At.UTC().Format(time.RFC3339Nano),
	)
	return mapConstraintErr(err)
}

func (s *Store) Attempts(ctx context.Context, id fiscal.DocumentID) ([]fiscal.SubmissionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, tenant_id, seq, channel, outcome, external_id, response_ref, duration_ms, at
		FROM submission_attempts WHERE document_id = ? ORDER BY seq
	`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []fiscal.SubmissionAttempt
	for rows.Next() {
		var (
			a          fiscal.SubmissionAttempt
			docID, tID string
			outcome    string
			durationMs int64
			at         string
		)
		if err := rows.Scan(&a.ID, &docID, &tID, &a.Seq, &a.Channel, &outcome, &a.ExternalID, &a.ResponseRef, &durationMs, &at); err != nil {
			return nil, err
		}
		a.DocumentID = fiscal.DocumentID(docID)
		a.TenantID = fiscal.TenantID(tID)
		a.Outcome = fiscal.AttemptOutcome(outcome)
		a.Duration = time.Duration(durationMs) * time.Millisecond
		a.At, _ = time.Parse(time.RFC3339Nano, at)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// =============================================================================
// AUDIT LOG (fiscal.AuditLog interface)
// =============================================================================

func (s *Store) Record(ctx context.Context, entry fiscal.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO audit_log (id, at, tenant_id, document_id, actor, actor_type, from_state, to_state, cause)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.At.UTC().Format(time.RFC3339Nano),
		string(entry.TenantID), string(entry.DocumentID),
		entry.Actor, string(entry.ActorType),
		string(entry.FromState), string(entry.ToState), entry.Cause,
	)
	return mapConstraintErr(err)
}

func (s *Store) Query(ctx context.Context, filter fiscal.AuditFilter) ([]fiscal.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, at, tenant_id, document_id, actor, actor_type, from_state, to_state, cause
		FROM audit_log WHERE 1=1
	`
	var args []any
	if filter.TenantID != nil {
		query += " AND tenant_id = ?"
		args = append(args, string(*filter.TenantID))
	}
	if filter.DocumentID != nil {
		query += " AND document_id = ?"
		args = append(args, string(*filter.DocumentID))
	}
	if filter.Actor != nil {
		query += " AND actor = ?"
		args = append(args, *filter.Actor)
	}
	if filter.From != nil {
		query += " AND at >= ?"
		args = append(args, filter.From.UTC().Format(time.RFC3339Nano))
	}
	if filter.To != nil {
		query += " AND at <= ?"
		args = append(args, filter.To.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []fiscal.AuditEntry
	for rows.Next() {
		var (
			e                         fiscal.AuditEntry
			at, tID, docID, actorType string
			fromState, toState        string
		)
		if err := rows.Scan(&e.ID, &at, &tID, &docID, &e.Actor, &actorType, &fromState, &toState, &e.Cause); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.TenantID = fiscal.TenantID(tID)
		e.DocumentID = fiscal.DocumentID(docID)
		e.ActorType = fiscal.ActorType(actorType)
		e.FromState = fiscal.Status(fromState)
		e.ToState = fiscal.Status(toState)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SERIES STORE (fiscal.SeriesStore interface)
// =============================================================================

// NextSequence allocates the next gapless number for (tenant, series)
// inside a database transaction.
func (s *Store) NextSequence(ctx context.Context, tenantID fiscal.TenantID, series string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO series_counters (tenant_id, series, next) VALUES (?, ?, 1)
		ON CONFLICT(tenant_id, series) DO UPDATE SET next = next + 1
	`, string(tenantID), series)
	if err != nil {
		return 0, err
	}

	var next int64
	err = tx.QueryRowContext(ctx,
		"SELECT next FROM series_counters WHERE tenant_id = ? AND series = ?",
		string(tenantID), series,
	).Scan(&next)
	if err != nil {
		return 0, err
	}

	return next, tx.Commit()
}

// =============================================================================
// TENANT STORE (fiscal.TenantStore interface)
// =============================================================================

func (s *Store) SaveTenant(ctx context.Context, cfg fiscal.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO tenants (id, name, mode, endpoint, api_key, cert_ref, series, max_attempts, default_currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mode = excluded.mode,
			endpoint = excluded.endpoint,
			api_key = excluded.api_key,
			cert_ref = excluded.cert_ref,
			series = excluded.series,
			max_attempts = excluded.max_attempts,
			default_currency = excluded.default_currency,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		string(cfg.ID), cfg.Name, string(cfg.Mode), cfg.Endpoint, cfg.APIKey, cfg.CertRef,
		cfg.Series, cfg.MaxAttempts, cfg.DefaultCurrency, now, now,
	)
	return err
}

func (s *Store) GetTenant(ctx context.Context, id fiscal.TenantID) (*fiscal.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectTenant+" WHERE id = ?", string(id))
	cfg, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, fiscal.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]fiscal.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectTenant+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []fiscal.TenantConfig
	for rows.Next() {
		cfg, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *cfg)
	}
	return tenants, rows.Err()
}

const selectTenant = `
	SELECT id, name, mode, endpoint, api_key, cert_ref, series, max_attempts, default_currency, created_at, updated_at
	FROM tenants`

func scanTenant(row rowScanner) (*fiscal.TenantConfig, error) {
	var (
		cfg                  fiscal.TenantConfig
		id, mode             string
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &cfg.Name, &mode, &cfg.Endpoint, &cfg.APIKey, &cfg.CertRef,
		&cfg.Series, &cfg.MaxAttempts, &cfg.DefaultCurrency, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	cfg.ID = fiscal.TenantID(id)
	cfg.Mode = fiscal.AuthorityMode(mode)
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cfg, nil
}
