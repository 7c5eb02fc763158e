package rpc

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// AuditStore persists one row per submitted request.
type AuditStore struct {
	db *sql.DB
}

// AuditEntry represents an audit log row.
type AuditEntry struct {
	RequestID  string
	Op         string
	Caller     string
	Seller     string
	OrderID    string
	Outcome    string
	ErrorKind  string
	OccurredAt time.Time
}

func NewAuditStore(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)
	store := &AuditStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *AuditStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL,
            request_id TEXT NOT NULL,
            op TEXT NOT NULL,
            caller TEXT,
            seller TEXT,
            order_id TEXT,
            outcome TEXT NOT NULL,
            error_kind TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS audit_log_order ON audit_log(seller, order_id);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}

func (s *AuditStore) Insert(ctx context.Context, entry AuditEntry) error {
	const stmt = `INSERT INTO audit_log(occurred_at, request_id, op, caller, seller, order_id, outcome, error_kind) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, stmt, entry.OccurredAt, entry.RequestID, entry.Op, entry.Caller, entry.Seller, entry.OrderID, entry.Outcome, entry.ErrorKind)
	return err
}

// ForOrder lists the audit rows of one order, oldest first.
func (s *AuditStore) ForOrder(ctx context.Context, seller, orderID string) ([]AuditEntry, error) {
	const query = `SELECT occurred_at, request_id, op, caller, seller, order_id, outcome, error_kind FROM audit_log WHERE seller = ? AND order_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, seller, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.OccurredAt, &entry.RequestID, &entry.Op, &entry.Caller, &entry.Seller, &entry.OrderID, &entry.Outcome, &entry.ErrorKind); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
