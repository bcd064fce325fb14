/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  coderule.RuleSource:   Rule configs for the lookup catalog
  workflow.RequestStore: Maker-checker request records
  workflow.AccountStore: Chart-of-accounts records (includes AccountLookup)
  auth.UserStore:        Back-office users
  auth.SessionStore:     Issued session tokens

KEY TABLES:
  coa_rules:        Code-generation rule configs (stored as JSON)
  rule_categories:  Administered value lists (CURRENCY, NETWORK, ...)
  rule_values:      Values under a category, soft-deleted on removal
  coa_accounts:     The chart of accounts
  coa_requests:     Maker-checker requests wrapping account payloads
  users:            Back-office users with roles and permissions
  sessions:         Opaque tokens with access/refresh expiry

INDEXES:
  - idx_accounts_account_no: Unique; backs the duplicate check (hot path)
  - idx_requests_status:     Pending-queue listings and the pending count
  - idx_values_category:     Category value listings

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/coa.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - coderule/catalog.go:  Loads rules from this store
  - workflow/service.go:  Drives requests through this store
  - auth/session.go:      Uses the user and session tables
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/coa-engine/auth"
	"github.com/warp/coa-engine/coderule"
	"github.com/warp/coa-engine/workflow"
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Code-generation rules (config stored as JSON)
	CREATE TABLE IF NOT EXISTS coa_rules (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Administered value lists
	CREATE TABLE IF NOT EXISTS rule_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rule_values (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category_id INTEGER NOT NULL REFERENCES rule_categories(id),
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		sort_order INTEGER DEFAULT 0,
		is_delete BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_values_category
		ON rule_values(category_id);

	-- The chart of accounts
	CREATE TABLE IF NOT EXISTS coa_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_no TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		currency TEXT,
		provider TEXT,
		network TEXT,
		description TEXT,
		parent_id INTEGER,
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: backs the duplicate account number check
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_account_no
		ON coa_accounts(account_no);
	CREATE INDEX IF NOT EXISTS idx_accounts_type
		ON coa_accounts(type);
	CREATE INDEX IF NOT EXISTS idx_accounts_status
		ON coa_accounts(status);

	-- Maker-checker requests
	CREATE TABLE IF NOT EXISTS coa_requests (
		id TEXT PRIMARY KEY,
		account_id INTEGER,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		maker_json TEXT NOT NULL,
		checker_json TEXT,
		data_json TEXT NOT NULL,
		analysis_json TEXT,
		rejection_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		checked_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON coa_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_account
		ON coa_requests(account_id) WHERE account_id IS NOT NULL;

	-- Back-office users
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		roles_json TEXT NOT NULL DEFAULT '[]',
		permissions_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	-- Issued sessions
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		access_expires_at TEXT NOT NULL,
		refresh_expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user
		ON sessions(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RULES (coderule.RuleSource)
// =============================================================================

// ListRules returns all stored rule configs, ready for the catalog.
func (s *Store) ListRules(ctx context.Context) ([]coderule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT config_json FROM coa_rules ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []coderule.Rule
	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			return nil, err
		}
		var rule coderule.Rule
		if err := json.Unmarshal([]byte(configJSON), &rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule config: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveRule upserts one rule config keyed by its code.
func (s *Store) SaveRule(ctx context.Context, rule coderule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule config: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coa_rules (id, code, name, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`, rule.ID, rule.Code, rule.Name, string(configJSON), now, now)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// =============================================================================
// RULE CATEGORIES AND VALUES
// =============================================================================

// ListCategories returns all categories with their non-deleted values.
func (s *Store) ListCategories(ctx context.Context) ([]coderule.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, code, name FROM rule_categories ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []coderule.Category
	for rows.Next() {
		var c coderule.Category
		if err := rows.Scan(&c.ID, &c.Code, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range categories {
		values, err := s.categoryValues(ctx, categories[i].ID)
		if err != nil {
			return nil, err
		}
		categories[i].Values = values
	}
	return categories, nil
}

// GetCategoryByCode returns one category with its non-deleted values, or
// nil when the code is unknown.
func (s *Store) GetCategoryByCode(ctx context.Context, code string) (*coderule.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c coderule.Category
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, name FROM rule_categories WHERE code = ?", code,
	).Scan(&c.ID, &c.Code, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}

	c.Values, err = s.categoryValues(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) categoryValues(ctx context.Context, categoryID int64) ([]coderule.CategoryValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, name, value, sort_order, is_delete
		FROM rule_values
		WHERE category_id = ? AND is_delete = FALSE
		ORDER BY sort_order ASC, id ASC
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query category values: %w", err)
	}
	defer rows.Close()

	var values []coderule.CategoryValue
	for rows.Next() {
		var v coderule.CategoryValue
		if err := rows.Scan(&v.ID, &v.CategoryID, &v.Name, &v.Value, &v.SortOrder, &v.Deleted); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// SaveCategory upserts a category shell keyed by its code.
func (s *Store) SaveCategory(ctx context.Context, code, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_categories (code, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`, code, name, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to save category: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM rule_categories WHERE code = ?", code).Scan(&id)
	return id, err
}

// ReplaceCategoryValues replaces a category's value list. Existing rows
// are soft-deleted rather than removed so stored codes keep their meaning.
func (s *Store) ReplaceCategoryValues(ctx context.Context, categoryID int64, values []coderule.CategoryValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"UPDATE rule_values SET is_delete = TRUE, updated_at = ? WHERE category_id = ?",
		now, categoryID); err != nil {
		return fmt.Errorf("failed to retire category values: %w", err)
	}

	for i, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rule_values
			(category_id, name, value, sort_order, is_delete, created_at, updated_at)
			VALUES (?, ?, ?, ?, FALSE, ?, ?)
		`, categoryID, v.Name, v.Value, i, now, now); err != nil {
			return fmt.Errorf("failed to insert category value: %w", err)
		}
	}

	return tx.Commit()
}

// =============================================================================
// ACCOUNTS (workflow.AccountStore)
// =============================================================================

const accountColumns = `id, account_no, code, name, type, status,
	currency, provider, network, description, parent_id, balance,
	created_at, updated_at`

// AccountNoExists backs the duplicate check.
func (s *Store) AccountNoExists(ctx context.Context, accountNo string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM coa_accounts WHERE account_no = ?",
		accountNo,
	).Scan(&count)
	return count > 0, err
}

// GetAccount returns one account by id, or nil when unknown.
func (s *Store) GetAccount(ctx context.Context, id int64) (*workflow.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM coa_accounts WHERE id = ?", id)
	return scanAccount(row)
}

// GetAccountByNo returns one account by number, or nil when unknown.
func (s *Store) GetAccountByNo(ctx context.Context, accountNo string) (*workflow.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM coa_accounts WHERE account_no = ?", accountNo)
	return scanAccount(row)
}

// SaveAccount inserts a new account and fills in its id.
func (s *Store) SaveAccount(ctx context.Context, account *workflow.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO coa_accounts
		(account_no, code, name, type, status, currency, provider, network,
		 description, parent_id, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		account.AccountNo,
		account.Code,
		account.Name,
		string(account.Type),
		string(account.Status),
		nullString(account.Currency),
		nullString(account.Provider),
		nullString(account.Network),
		nullString(account.Description),
		account.ParentID,
		account.Balance.String(),
		account.CreatedAt.Format(time.RFC3339),
		account.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return workflow.ErrDuplicateAccountNo
		}
		return fmt.Errorf("failed to save account: %w", err)
	}

	account.ID, err = res.LastInsertId()
	return err
}

// UpdateAccount rewrites an existing account.
func (s *Store) UpdateAccount(ctx context.Context, account *workflow.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE coa_accounts SET
			account_no = ?, code = ?, name = ?, type = ?, status = ?,
			currency = ?, provider = ?, network = ?, description = ?,
			parent_id = ?, balance = ?, updated_at = ?
		WHERE id = ?
	`,
		account.AccountNo,
		account.Code,
		account.Name,
		string(account.Type),
		string(account.Status),
		nullString(account.Currency),
		nullString(account.Provider),
		nullString(account.Network),
		nullString(account.Description),
		account.ParentID,
		account.Balance.String(),
		account.UpdatedAt.Format(time.RFC3339),
		account.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return workflow.ErrDuplicateAccountNo
		}
		return fmt.Errorf("failed to update account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return workflow.ErrAccountNotFound
	}
	return nil
}

// ListAccounts returns one page of accounts matching the filter, plus the
// total match count.
func (s *Store) ListAccounts(ctx context.Context, filter workflow.AccountFilter) ([]workflow.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter.Normalize()

	where := []string{"1=1"}
	var args []any
	addEq := func(column, value string) {
		if value != "" {
			where = append(where, column+" = ?")
			args = append(args, value)
		}
	}
	addEq("type", filter.Type)
	addEq("status", filter.Status)
	addEq("currency", filter.Currency)
	addEq("provider", filter.Provider)
	addEq("network", filter.Network)
	if filter.Search != "" {
		where = append(where, "(account_no LIKE ? OR code LIKE ? OR name LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM coa_accounts WHERE "+whereClause, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	query := "SELECT " + accountColumns + " FROM coa_accounts WHERE " + whereClause +
		" ORDER BY account_no ASC LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []workflow.Account
	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row *sql.Row) (*workflow.Account, error) {
	account, err := scanAccountRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return account, err
}

func scanAccountRow(row rowScanner) (*workflow.Account, error) {
	var (
		a         workflow.Account
		currency  sql.NullString
		provider  sql.NullString
		network   sql.NullString
		desc      sql.NullString
		parentID  sql.NullInt64
		balance   string
		createdAt string
		updatedAt string
		accType   string
		accStatus string
	)
	err := row.Scan(&a.ID, &a.AccountNo, &a.Code, &a.Name, &accType, &accStatus,
		&currency, &provider, &network, &desc, &parentID, &balance,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Type = workflow.AccountType(accType)
	a.Status = workflow.AccountStatus(accStatus)
	a.Currency = currency.String
	a.Provider = provider.String
	a.Network = network.String
	a.Description = desc.String
	if parentID.Valid {
		a.ParentID = &parentID.Int64
	}
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

// =============================================================================
// REQUESTS (workflow.RequestStore)
// =============================================================================

const requestColumns = `id, account_id, type, status, maker_json, checker_json,
	data_json, analysis_json, rejection_reason, created_at, updated_at, checked_at`

// SaveRequest inserts a new request.
func (s *Store) SaveRequest(ctx context.Context, req *workflow.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	makerJSON, err := json.Marshal(req.Maker)
	if err != nil {
		return err
	}
	dataJSON, err := json.Marshal(req.Data)
	if err != nil {
		return err
	}
	var analysisJSON any
	if req.Analysis != nil {
		b, err := json.Marshal(req.Analysis)
		if err != nil {
			return err
		}
		analysisJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coa_requests
		(id, account_id, type, status, maker_json, checker_json, data_json,
		 analysis_json, rejection_reason, created_at, updated_at, checked_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?, NULL)
	`,
		req.ID,
		req.AccountID,
		string(req.Type),
		string(req.Status),
		string(makerJSON),
		string(dataJSON),
		analysisJSON,
		nullString(req.RejectionReason),
		req.CreatedAt.UTC().Format(time.RFC3339),
		req.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	return nil
}

// UpdateRequest rewrites an existing request.
func (s *Store) UpdateRequest(ctx context.Context, req *workflow.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dataJSON, err := json.Marshal(req.Data)
	if err != nil {
		return err
	}
	var checkerJSON any
	if req.Checker != nil {
		b, err := json.Marshal(req.Checker)
		if err != nil {
			return err
		}
		checkerJSON = string(b)
	}
	var analysisJSON any
	if req.Analysis != nil {
		b, err := json.Marshal(req.Analysis)
		if err != nil {
			return err
		}
		analysisJSON = string(b)
	}
	var checkedAt any
	if req.CheckedAt != nil {
		checkedAt = req.CheckedAt.UTC().Format(time.RFC3339)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE coa_requests SET
			status = ?, checker_json = ?, data_json = ?, analysis_json = ?,
			rejection_reason = ?, updated_at = ?, checked_at = ?
		WHERE id = ?
	`,
		string(req.Status),
		checkerJSON,
		string(dataJSON),
		analysisJSON,
		nullString(req.RejectionReason),
		req.UpdatedAt.UTC().Format(time.RFC3339),
		checkedAt,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return workflow.ErrRequestNotFound
	}
	return nil
}

// GetRequest returns one request by id, or nil when unknown.
func (s *Store) GetRequest(ctx context.Context, id string) (*workflow.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+requestColumns+" FROM coa_requests WHERE id = ?", id)
	req, err := scanRequestRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

// ListRequests returns one page of requests matching the filter, newest
// first, plus the total match count.
func (s *Store) ListRequests(ctx context.Context, filter workflow.RequestFilter) ([]*workflow.Request, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter.Normalize()

	where := []string{"1=1"}
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM coa_requests WHERE "+whereClause, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	query := "SELECT " + requestColumns + " FROM coa_requests WHERE " + whereClause +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []*workflow.Request
	for rows.Next() {
		req, err := scanRequestRow(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

// CountPendingRequests backs the pending badge on the request listing.
func (s *Store) CountPendingRequests(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM coa_requests WHERE status = ?",
		string(workflow.StatusPending),
	).Scan(&count)
	return count, err
}

func scanRequestRow(row rowScanner) (*workflow.Request, error) {
	var (
		req          workflow.Request
		accountID    sql.NullInt64
		reqType      string
		reqStatus    string
		makerJSON    string
		checkerJSON  sql.NullString
		dataJSON     string
		analysisJSON sql.NullString
		reason       sql.NullString
		createdAt    string
		updatedAt    string
		checkedAt    sql.NullString
	)
	err := row.Scan(&req.ID, &accountID, &reqType, &reqStatus, &makerJSON,
		&checkerJSON, &dataJSON, &analysisJSON, &reason,
		&createdAt, &updatedAt, &checkedAt)
	if err != nil {
		return nil, err
	}

	req.Type = workflow.RequestType(reqType)
	req.Status = workflow.RequestStatus(reqStatus)
	if accountID.Valid {
		req.AccountID = &accountID.Int64
	}
	if err := json.Unmarshal([]byte(makerJSON), &req.Maker); err != nil {
		return nil, fmt.Errorf("failed to decode maker: %w", err)
	}
	if checkerJSON.Valid {
		var checker workflow.Actor
		if err := json.Unmarshal([]byte(checkerJSON.String), &checker); err != nil {
			return nil, fmt.Errorf("failed to decode checker: %w", err)
		}
		req.Checker = &checker
	}
	if err := json.Unmarshal([]byte(dataJSON), &req.Data); err != nil {
		return nil, fmt.Errorf("failed to decode request data: %w", err)
	}
	if analysisJSON.Valid {
		var analysis coderule.CodeAnalysis
		if err := json.Unmarshal([]byte(analysisJSON.String), &analysis); err != nil {
			return nil, fmt.Errorf("failed to decode code analysis: %w", err)
		}
		req.Analysis = &analysis
	}
	req.RejectionReason = reason.String
	req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	req.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if checkedAt.Valid {
		t, _ := time.Parse(time.RFC3339, checkedAt.String)
		req.CheckedAt = &t
	}
	return &req, nil
}

// =============================================================================
// USERS (auth.UserStore)
// =============================================================================

const userColumns = `id, email, full_name, password_hash, roles_json, permissions_json`

// GetUserByEmail returns one user by email, or nil when unknown.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

// GetUser returns one user by id, or nil when unknown.
func (s *Store) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

// SaveUser inserts a new user and fills in its id.
func (s *Store) SaveUser(ctx context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rolesJSON, err := json.Marshal(user.Roles)
	if err != nil {
		return err
	}
	permissionsJSON, err := json.Marshal(user.Permissions)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, full_name, password_hash, roles_json, permissions_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		user.Email,
		user.FullName,
		user.PasswordHash,
		string(rolesJSON),
		string(permissionsJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	user.ID, err = res.LastInsertId()
	return err
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u               auth.User
		rolesJSON       string
		permissionsJSON string
	)
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash,
		&rolesJSON, &permissionsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if err := json.Unmarshal([]byte(rolesJSON), &u.Roles); err != nil {
		return nil, fmt.Errorf("failed to decode roles: %w", err)
	}
	if err := json.Unmarshal([]byte(permissionsJSON), &u.Permissions); err != nil {
		return nil, fmt.Errorf("failed to decode permissions: %w", err)
	}
	return &u, nil
}

// =============================================================================
// SESSIONS (auth.SessionStore)
// =============================================================================

// SaveSession inserts a new session.
func (s *Store) SaveSession(ctx context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, access_expires_at, refresh_expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		session.Token,
		session.UserID,
		session.AccessExpiresAt.UTC().Format(time.RFC3339),
		session.RefreshExpiresAt.UTC().Format(time.RFC3339),
		session.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession returns one session by token, or nil when unknown.
func (s *Store) GetSession(ctx context.Context, token string) (*auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		session   auth.Session
		accessAt  string
		refreshAt string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, user_id, access_expires_at, refresh_expires_at, created_at
		FROM sessions WHERE token = ?
	`, token).Scan(&session.Token, &session.UserID, &accessAt, &refreshAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session.AccessExpiresAt, _ = time.Parse(time.RFC3339, accessAt)
	session.RefreshExpiresAt, _ = time.Parse(time.RFC3339, refreshAt)
	session.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &session, nil
}

// UpdateSession rewrites a session's expiry horizons.
func (s *Store) UpdateSession(ctx context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET access_expires_at = ?, refresh_expires_at = ?
		WHERE token = ?
	`,
		session.AccessExpiresAt.UTC().Format(time.RFC3339),
		session.RefreshExpiresAt.UTC().Format(time.RFC3339),
		session.Token,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// DeleteSession removes a session. Unknown tokens are not an error.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// ListSessions returns all stored sessions, for the refresh sweep.
func (s *Store) ListSessions(ctx context.Context) ([]*auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT token, user_id, access_expires_at, refresh_expires_at, created_at
		FROM sessions
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		var (
			session   auth.Session
			accessAt  string
			refreshAt string
			createdAt string
		)
		if err := rows.Scan(&session.Token, &session.UserID, &accessAt, &refreshAt, &createdAt); err != nil {
			return nil, err
		}
		session.AccessExpiresAt, _ = time.Parse(time.RFC3339, accessAt)
		session.RefreshExpiresAt, _ = time.Parse(time.RFC3339, refreshAt)
		session.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
