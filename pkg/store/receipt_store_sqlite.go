package store

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// SQLiteReceiptStore persists receipts in a single receipts table, ordered
// by an auto-increment sequence that mirrors the chain order.
type SQLiteReceiptStore struct {
	db *sql.DB
}

// OpenSQLiteReceiptStore opens (or creates) the database at path and runs
// the migration.
func OpenSQLiteReceiptStore(path string) (*SQLiteReceiptStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeStorage, err, "open receipt db %s", path)
	}
	return NewSQLiteReceiptStore(db)
}

// NewSQLiteReceiptStore wraps an existing handle and runs the migration.
func NewSQLiteReceiptStore(db *sql.DB) (*SQLiteReceiptStore, error) {
	s := &SQLiteReceiptStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteReceiptStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS receipts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		ctx TEXT NOT NULL,
		src TEXT NOT NULL,
		dst TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		cost INTEGER NOT NULL,
		nonce INTEGER NOT NULL,
		prev_hash TEXT NOT NULL,
		sig TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		body JSON NOT NULL
	);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return aerr.Wrap(aerr.CodeStorage, err, "migrate receipts")
	}
	return nil
}

// Close releases the handle.
func (s *SQLiteReceiptStore) Close() error { return s.db.Close() }

func (s *SQLiteReceiptStore) Append(ctx context.Context, receipt flow.Receipt) error {
	body, err := json.Marshal(receipt)
	if err != nil {
		return aerr.Wrap(aerr.CodeSerialization, err, "encode receipt")
	}
	contentHash, err := receipt.ContentHash()
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, err, "hash receipt")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts (ctx, src, dst, epoch, cost, nonce, prev_hash, sig, content_hash, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(receipt.Ctx), receipt.Src.String(), receipt.Dst.String(),
		int64(receipt.Epoch.Value()), int64(receipt.Cost), int64(receipt.Nonce),
		receipt.PrevReceiptHash.String(), receipt.Sig.String(), contentHash.String(), body)
	if err != nil {
		return aerr.Wrap(aerr.CodeStorage, err, "append receipt")
	}
	return nil
}

func (s *SQLiteReceiptStore) Head(ctx context.Context) (identifiers.Hash32, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM receipts ORDER BY seq DESC LIMIT 1`)
	var body []byte
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return identifiers.ZeroHash, nil
		}
		return identifiers.Hash32{}, aerr.Wrap(aerr.CodeStorage, err, "read chain head")
	}
	var receipt flow.Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return identifiers.Hash32{}, aerr.Wrap(aerr.CodeSerialization, err, "decode chain head")
	}
	return receipt.ContentHash()
}

func (s *SQLiteReceiptStore) List(ctx context.Context, limit int) ([]flow.Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM receipts ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeStorage, err, "list receipts")
	}
	defer func() { _ = rows.Close() }()

	var receipts []flow.Receipt
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, aerr.Wrap(aerr.CodeStorage, err, "scan receipt")
		}
		var receipt flow.Receipt
		if err := json.Unmarshal(body, &receipt); err != nil {
			return nil, aerr.Wrap(aerr.CodeSerialization, err, "decode receipt")
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, aerr.Wrap(aerr.CodeStorage, err, "list receipts")
	}
	return receipts, nil
}

func (s *SQLiteReceiptStore) VerifyChain(ctx context.Context) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM receipts ORDER BY seq ASC`)
	if err != nil {
		return false, aerr.Wrap(aerr.CodeStorage, err, "read chain")
	}
	defer func() { _ = rows.Close() }()

	var chain []flow.Receipt
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return false, aerr.Wrap(aerr.CodeStorage, err, "scan receipt")
		}
		var receipt flow.Receipt
		if err := json.Unmarshal(body, &receipt); err != nil {
			return false, aerr.Wrap(aerr.CodeSerialization, err, "decode receipt")
		}
		chain = append(chain, receipt)
	}
	if err := rows.Err(); err != nil {
		return false, aerr.Wrap(aerr.CodeStorage, err, "read chain")
	}
	return verifyChain(chain)
}
