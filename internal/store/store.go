// Package store implements the authoritative ledger store: an append-only,
// hash-chained record log with a SQLite query index and the baseline hash
// registry.
//
// Storage layout:
//
//	<dir>/
//	├── genesis.json        # First record, establishes the chain
//	├── 2026-08-29.jsonl    # Daily records (append-only)
//	└── index.db            # SQLite index: fast queries + baseline registry
//
// The JSONL files are the source of truth; the SQLite index is a queryable
// projection that can be rebuilt from them. Thread-safe — the feed server
// appends from multiple handler goroutines.
package store

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia/ledgerwatch/internal/ledger"
)

// GenesisPrevHash is the fixed prev-hash of the genesis record.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// QueryParams defines filters for querying the stored ledger.
// Empty/zero values mean "no filter".
type QueryParams struct {
	Actor     string // Filter by actor id (exact match).
	EventType string // Filter by event type (exact match).
	Since     string // RFC 3339 timestamp lower bound.
	Limit     int    // Maximum records to return.
}

// Store manages the hash-chained, append-only ledger for one workspace.
type Store struct {
	mu       sync.Mutex
	dir      string
	lastHash string
	index    *sqliteIndex
	file     *os.File
	fileDate string
	now      func() time.Time
}

// Open opens or creates a ledger store in the given directory, creating the
// genesis record if the chain has not been established yet.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory %s: %w", dir, err)
	}

	s := &Store{
		dir:      dir,
		lastHash: GenesisPrevHash,
		now:      time.Now,
	}

	idx, err := openIndex(filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("opening ledger index: %w", err)
	}
	s.index = idx

	if err := s.loadGenesis(); err != nil {
		idx.close()
		return nil, err
	}

	// Scan existing JSONL files so the chain continues correctly after a
	// restart.
	if err := s.recoverState(); err != nil {
		idx.close()
		return nil, err
	}

	slog.Info("ledger store opened", "dir", dir, "last_hash", s.lastHash)
	return s, nil
}

// Close flushes and closes the ledger files and SQLite index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		s.file = nil
	}
	if s.index != nil {
		if err := s.index.close(); err != nil {
			errs = append(errs, err)
		}
		s.index = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing ledger store: %v", errs)
	}
	return nil
}

// Append writes a new record to the ledger, linking it to the chain. The
// store owns identity: id, timestamp, prev-hash, and hash are assigned here
// and callers cannot influence them.
func (s *Store) Append(eventType, actorID, resourceID string, payload ledger.Payload) (ledger.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := ledger.AuditRecord{
		ID:         uuid.NewString(),
		EventType:  eventType,
		ActorID:    actorID,
		CreatedAt:  s.now().UTC().Format(time.RFC3339Nano),
		ResourceID: resourceID,
		PrevHash:   s.lastHash,
		Payload:    payload,
	}
	r.Hash = ledger.ChainHash(s.lastHash, &r)

	if err := s.writeToFile(&r); err != nil {
		return ledger.AuditRecord{}, fmt.Errorf("appending record: %w", err)
	}

	// Index errors are logged inside; the JSONL write is authoritative.
	if s.index != nil {
		s.index.insert(&r)
	}

	s.lastHash = r.Hash
	return r, nil
}

// Heartbeat appends heartbeat records at the given interval until the
// context ends, so consumers can tell a quiet ledger from a dead feed.
// onAppend (optional) is invoked after each heartbeat lands.
func (s *Store) Heartbeat(ctx context.Context, interval time.Duration, onAppend func(ledger.AuditRecord)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r, err := s.Append(ledger.EventHeartbeat, "", "", ledger.Payload{Status: "VERIFIED"})
			if err != nil {
				slog.Error("heartbeat append failed", "error", err)
				continue
			}
			if onAppend != nil {
				onAppend(r)
			}
		}
	}
}

// Recent returns the N most recent records in ledger order (oldest first),
// so the result is directly verifiable as a chain window.
func (s *Store) Recent(limit int) ([]ledger.AuditRecord, error) {
	if s.index != nil {
		records, err := s.index.query(QueryParams{Limit: limit})
		if err == nil {
			return records, nil
		}
		slog.Warn("index query failed, reading JSONL", "error", err)
	}
	return s.readAll(limit)
}

// Query retrieves stored records matching the given filters, oldest first.
func (s *Store) Query(params QueryParams) ([]ledger.AuditRecord, error) {
	if s.index != nil {
		return s.index.query(params)
	}
	return s.queryFiles(params)
}

// Verify walks the entire stored ledger and checks both chain linkage and
// each record's own hash. The genesis record anchors the walk.
func (s *Store) Verify() (ledger.ChainReport, error) {
	records, err := s.readAll(0)
	if err != nil {
		return ledger.ChainReport{}, fmt.Errorf("reading ledger for verification: %w", err)
	}

	report := ledger.VerifyChain(records)
	// Chain linkage alone misses in-place edits to the newest record;
	// recompute each record's hash from its declared prev-hash.
	for i, r := range records {
		if ledger.ChainHash(r.PrevHash, &r) != r.Hash {
			report.Mismatches = append(report.Mismatches, ledger.Mismatch{
				Index:    i,
				RecordID: r.ID,
				Expected: ledger.ChainHash(r.PrevHash, &r),
				Actual:   r.Hash,
			})
		}
	}
	return report, nil
}

// Export writes all stored records to w in the given format: "jsonl"
// (default), "json", or "csv".
func (s *Store) Export(w io.Writer, format string) error {
	records, err := s.readAll(0)
	if err != nil {
		return fmt.Errorf("reading ledger for export: %w", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)

	case "csv":
		cw := csv.NewWriter(w)
		defer cw.Flush()
		if err := cw.Write([]string{"createdAt", "actor", "event", "resource", "hash", "signature", "prevHash", "status"}); err != nil {
			return err
		}
		for _, r := range records {
			if err := cw.Write([]string{
				r.CreatedAt,
				r.ActorID,
				r.EventType,
				r.Resource(),
				r.Hash,
				r.SignatureToken(),
				r.PrevHash,
				string(r.Status()),
			}); err != nil {
				return err
			}
		}
		return nil

	case "jsonl", "":
		enc := json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported export format: %s (use json, jsonl, or csv)", format)
	}
}

// writeToFile appends the record as one JSON line to today's JSONL file,
// rotating when the date changes.
func (s *Store) writeToFile(r *ledger.AuditRecord) error {
	today := s.now().UTC().Format("2006-01-02")

	if s.file == nil || s.fileDate != today {
		if s.file != nil {
			s.file.Close()
		}
		path := filepath.Join(s.dir, today+".jsonl")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening ledger file %s: %w", path, err)
		}
		s.file = f
		s.fileDate = today
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	// Flush immediately — ledger records must survive crashes.
	return s.file.Sync()
}

// loadGenesis loads or creates the genesis record anchoring the chain.
func (s *Store) loadGenesis() error {
	genesisPath := filepath.Join(s.dir, "genesis.json")

	data, err := os.ReadFile(genesisPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s.createGenesis(genesisPath)
		}
		return fmt.Errorf("reading genesis: %w", err)
	}

	var genesis ledger.AuditRecord
	if err := json.Unmarshal(data, &genesis); err != nil {
		return fmt.Errorf("parsing genesis: %w", err)
	}
	s.lastHash = genesis.Hash
	return nil
}

func (s *Store) createGenesis(path string) error {
	genesis := ledger.AuditRecord{
		ID:        uuid.NewString(),
		EventType: "LEDGER_GENESIS",
		CreatedAt: s.now().UTC().Format(time.RFC3339Nano),
		PrevHash:  GenesisPrevHash,
	}
	genesis.Hash = ledger.ChainHash(GenesisPrevHash, &genesis)

	data, err := json.MarshalIndent(genesis, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing genesis: %w", err)
	}

	s.lastHash = genesis.Hash
	slog.Info("ledger genesis created", "hash", genesis.Hash)
	return nil
}

// recoverState scans existing JSONL files for the last record's hash so the
// chain continues correctly after a restart, and re-indexes any records the
// SQLite index missed.
func (s *Store) recoverState() error {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("listing ledger files: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	// Files are date-named, so lexical order is chronological.
	last, err := readLastRecord(files[len(files)-1])
	if err != nil {
		return fmt.Errorf("recovering ledger state from %s: %w", files[len(files)-1], err)
	}
	if last == nil {
		return nil
	}
	s.lastHash = last.Hash

	if s.index != nil {
		s.reindex(files)
	}
	return nil
}

// reindex inserts any JSONL records missing from the SQLite index. Called
// on startup to recover from a crash between the JSONL write and indexing.
func (s *Store) reindex(files []string) {
	for _, file := range files {
		records, err := readRecordsFromFile(file)
		if err != nil {
			slog.Error("reindex: error reading file", "file", file, "error", err)
			continue
		}
		for _, r := range records {
			if !s.index.has(r.ID) {
				s.index.insert(&r)
			}
		}
	}
}

// readAll reads records from every JSONL file in ledger order. If limit > 0,
// only the last N records are returned.
func (s *Store) readAll(limit int) ([]ledger.AuditRecord, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("listing ledger files: %w", err)
	}

	var all []ledger.AuditRecord
	for _, file := range files {
		records, err := readRecordsFromFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// queryFiles filters JSONL records in memory. Fallback for an unavailable
// index.
func (s *Store) queryFiles(params QueryParams) ([]ledger.AuditRecord, error) {
	records, err := s.readAll(0)
	if err != nil {
		return nil, err
	}

	var filtered []ledger.AuditRecord
	for _, r := range records {
		if params.Actor != "" && r.ActorID != params.Actor {
			continue
		}
		if params.EventType != "" && r.EventType != params.EventType {
			continue
		}
		if params.Since != "" && r.CreatedAt < params.Since {
			continue
		}
		filtered = append(filtered, r)
	}

	if params.Limit > 0 && len(filtered) > params.Limit {
		filtered = filtered[len(filtered)-params.Limit:]
	}
	return filtered, nil
}

// readLastRecord reads the last non-empty line of a JSONL file.
// Returns nil if the file is empty.
func readLastRecord(path string) (*ledger.AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			lastLine = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if lastLine == "" {
		return nil, nil
	}

	var r ledger.AuditRecord
	if err := json.Unmarshal([]byte(lastLine), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// readRecordsFromFile reads all records from one JSONL file, skipping
// malformed lines rather than failing the read.
func readRecordsFromFile(path string) ([]ledger.AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []ledger.AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var r ledger.AuditRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			slog.Warn("skipping malformed ledger record", "error", err)
			continue
		}
		records = append(records, r)
	}
	return records, scanner.Err()
}
