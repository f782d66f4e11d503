// Package scan implements the sabotage scanner: it hashes a later-supplied
// copy of a produced file and classifies it against the baseline hash
// registry captured at ingestion time. The scanner never writes anywhere —
// a scan is a comparison, not a custody event.
package scan

import (
	"io"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"

	"github.com/custodia/ledgerwatch/internal/ledger"
)

// Classification is the outcome of comparing a file against its baseline.
type Classification string

const (
	// Clean means the file's hash matches the baseline ingestion record.
	Clean Classification = "CLEAN"
	// RedFlag means the hash changed after production — post-hoc tampering.
	RedFlag Classification = "RED_FLAG"
	// Unknown means no baseline exists (or the file was unreadable); a valid
	// result that requires human follow-up, not an error.
	Unknown Classification = "UNKNOWN"
)

// Report is the result of one sabotage scan.
type Report struct {
	Filename     string         `json:"filename"`
	Status       Classification `json:"status"`
	BaselineHash string         `json:"baselineHash,omitempty"`
	CurrentHash  string         `json:"currentHash,omitempty"`
	Reason       string         `json:"reason"`
	Action       string         `json:"action"`
}

// Scanner classifies files against a snapshot of the baseline registry.
// Safe for concurrent use: the registry snapshot is read-only and hashing
// shares no state with the live feed.
type Scanner struct {
	baselines []ledger.BaselineEntry
}

// New creates a scanner over a registry snapshot. The slice is used as-is;
// callers hand over ownership.
func New(baselines []ledger.BaselineEntry) *Scanner {
	return &Scanner{baselines: baselines}
}

// Scan hashes the file content and classifies it against the registry.
// An unreadable file classifies UNKNOWN rather than failing — the operator
// needs a report either way.
func (s *Scanner) Scan(filename string, content io.Reader) Report {
	currentHash, err := ledger.HashReader(content)
	if err != nil {
		slog.Warn("sabotage scan could not hash file", "filename", filename, "error", err)
		return Report{
			Filename: filename,
			Status:   Unknown,
			Reason:   "Unable to compute hash for production file.",
			Action:   "Retry scan or request alternate copy.",
		}
	}

	baseline, ok := s.lookup(filename)
	if !ok || baseline.IntegrityHash == "" {
		return Report{
			Filename:    filename,
			Status:      Unknown,
			CurrentHash: currentHash,
			Reason:      "No baseline hash on record for this production set.",
			Action:      "Request original export + chain-of-custody affidavit.",
		}
	}

	if baseline.IntegrityHash == currentHash {
		return Report{
			Filename:     filename,
			Status:       Clean,
			BaselineHash: baseline.IntegrityHash,
			CurrentHash:  currentHash,
			Reason:       "Hash matches baseline ingestion record.",
			Action:       "No remediation required.",
		}
	}

	return Report{
		Filename:     filename,
		Status:       RedFlag,
		BaselineHash: baseline.IntegrityHash,
		CurrentHash:  currentHash,
		Reason:       "Hash mismatch detected after production.",
		Action:       "Generate Forensic Red Flag report + motion for sanctions.",
	}
}

// lookup finds the registry entry for a filename. Exact matches win; bulk
// ingestion may register glob patterns (e.g. "disclosures-*.pdf"), which are
// tried second. Unparseable patterns are skipped.
func (s *Scanner) lookup(filename string) (ledger.BaselineEntry, bool) {
	for _, b := range s.baselines {
		if b.Filename == filename {
			return b, true
		}
	}
	for _, b := range s.baselines {
		if !strings.ContainsAny(b.Filename, "*?[{") {
			continue
		}
		g, err := glob.Compile(b.Filename)
		if err != nil {
			continue
		}
		if g.Match(filename) {
			return b, true
		}
	}
	return ledger.BaselineEntry{}, false
}
