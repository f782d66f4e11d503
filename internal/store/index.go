package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"

	"github.com/custodia/ledgerwatch/internal/ledger"
)

// sqliteIndex provides fast queries over the ledger and holds the baseline
// hash registry. The JSONL files are the source of truth for records; the
// index is a projection that can be rebuilt from them. Baselines live only
// here — they are written once at ingestion and read-only afterwards.
type sqliteIndex struct {
	db *sql.DB
}

// openIndex opens (or creates) the SQLite index database.
func openIndex(path string) (*sqliteIndex, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite index %s: %w", path, err)
	}

	// WAL mode for concurrent read/write (server appends, CLI reads).
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			event_type TEXT NOT NULL DEFAULT '',
			actor_id   TEXT NOT NULL DEFAULT '',
			resource   TEXT NOT NULL DEFAULT '',
			payload    TEXT NOT NULL DEFAULT '',
			prev_hash  TEXT NOT NULL DEFAULT '',
			hash       TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_records_actor ON records(actor_id);
		CREATE INDEX IF NOT EXISTS idx_records_event ON records(event_type);
		CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);

		CREATE TABLE IF NOT EXISTS baselines (
			exhibit_id     TEXT PRIMARY KEY,
			filename       TEXT NOT NULL,
			integrity_hash TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_baselines_filename ON baselines(filename);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}

	return &sqliteIndex{db: db}, nil
}

// insert adds a record to the index. Errors are logged, not returned — the
// JSONL write already succeeded and stays authoritative.
func (idx *sqliteIndex) insert(r *ledger.AuditRecord) {
	payloadJSON, _ := json.Marshal(r.Payload)

	_, err := idx.db.Exec(
		`INSERT OR REPLACE INTO records (id, created_at, event_type, actor_id, resource, payload, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt, r.EventType, r.ActorID, r.ResourceID,
		string(payloadJSON), r.PrevHash, r.Hash,
	)
	if err != nil {
		slog.Error("sqlite index insert failed", "id", r.ID, "error", err)
	}
}

// has reports whether the record id is already indexed.
func (idx *sqliteIndex) has(id string) bool {
	var one int
	err := idx.db.QueryRow("SELECT 1 FROM records WHERE id = ?", id).Scan(&one)
	return err == nil
}

// query retrieves indexed records matching the params, oldest first, so a
// returned window verifies directly as a chain.
func (idx *sqliteIndex) query(params QueryParams) ([]ledger.AuditRecord, error) {
	query := "SELECT id, created_at, event_type, actor_id, resource, payload, prev_hash, hash FROM records WHERE 1=1"
	var args []any

	if params.Actor != "" {
		query += " AND actor_id = ?"
		args = append(args, params.Actor)
	}
	if params.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, params.EventType)
	}
	if params.Since != "" {
		query += " AND created_at >= ?"
		args = append(args, params.Since)
	}

	// Newest first for the LIMIT, reversed below into ledger order.
	query += " ORDER BY seq DESC"
	if params.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, params.Limit)
	}

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sqlite index: %w", err)
	}
	defer rows.Close()

	var records []ledger.AuditRecord
	for rows.Next() {
		var r ledger.AuditRecord
		var payloadJSON string
		err := rows.Scan(
			&r.ID, &r.CreatedAt, &r.EventType, &r.ActorID,
			&r.ResourceID, &payloadJSON, &r.PrevHash, &r.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning sqlite row: %w", err)
		}
		if payloadJSON != "" && payloadJSON != "null" {
			// A malformed payload decodes to the zero value.
			json.Unmarshal([]byte(payloadJSON), &r.Payload)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// upsertBaseline writes one baseline registry entry.
func (idx *sqliteIndex) upsertBaseline(b ledger.BaselineEntry) error {
	_, err := idx.db.Exec(
		`INSERT OR REPLACE INTO baselines (exhibit_id, filename, integrity_hash) VALUES (?, ?, ?)`,
		b.ExhibitID, b.Filename, b.IntegrityHash,
	)
	if err != nil {
		return fmt.Errorf("writing baseline %s: %w", b.ExhibitID, err)
	}
	return nil
}

// baselines returns the full baseline registry.
func (idx *sqliteIndex) baselines() ([]ledger.BaselineEntry, error) {
	rows, err := idx.db.Query("SELECT exhibit_id, filename, integrity_hash FROM baselines ORDER BY filename")
	if err != nil {
		return nil, fmt.Errorf("querying baselines: %w", err)
	}
	defer rows.Close()

	var entries []ledger.BaselineEntry
	for rows.Next() {
		var b ledger.BaselineEntry
		if err := rows.Scan(&b.ExhibitID, &b.Filename, &b.IntegrityHash); err != nil {
			return nil, fmt.Errorf("scanning baseline row: %w", err)
		}
		entries = append(entries, b)
	}
	return entries, rows.Err()
}

// close closes the SQLite database connection.
func (idx *sqliteIndex) close() error {
	return idx.db.Close()
}
