package ledger

import "strings"

// Consistency is the display label for a verified record window.
type Consistency string

const (
	ConsistencyMatched  Consistency = "MATCHED"
	ConsistencyMismatch Consistency = "MISMATCH"
	ConsistencyUnknown  Consistency = "UNKNOWN"
)

// Mismatch describes one broken chain boundary: the record at Index declared
// a PrevHash that does not equal its predecessor's Hash.
type Mismatch struct {
	Index    int    `json:"index"`
	RecordID string `json:"recordId"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ChainReport is the outcome of verifying a record window. Verification is
// read-only: it derives a label and root hash, it never mutates the ledger.
type ChainReport struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
	RootHash   string     `json:"rootHash,omitempty"`
}

// Valid reports whether every adjacent pair in the window linked correctly.
func (r ChainReport) Valid() bool { return len(r.Mismatches) == 0 }

// Label maps the report to a display consistency label. An empty window is
// UNKNOWN. An active breach alert forces MISMATCH even when every boundary
// checked out — the out-of-band signal is corroborating evidence the window
// alone cannot refute.
func (r ChainReport) Label(breachActive bool) Consistency {
	if r.Checked == 0 {
		return ConsistencyUnknown
	}
	if breachActive || len(r.Mismatches) > 0 {
		return ConsistencyMismatch
	}
	return ConsistencyMatched
}

// VerifyChain walks a window of records in ledger order (oldest first) and
// checks the prev-hash linkage of every adjacent pair. The first record's
// PrevHash is not checked against anything outside the window — the window
// is a view, not necessarily the whole ledger.
func VerifyChain(records []AuditRecord) ChainReport {
	report := ChainReport{
		Checked:  len(records),
		RootHash: RootHash(records),
	}
	for i := 1; i < len(records); i++ {
		if records[i].PrevHash != records[i-1].Hash {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Index:    i,
				RecordID: records[i].ID,
				Expected: records[i-1].Hash,
				Actual:   records[i].PrevHash,
			})
		}
	}
	return report
}

// RootHash computes the aggregate digest over a window of records: the
// SHA-256 of the records' hashes joined with "|", in window order. A record
// with no hash contributes its signature token instead so the root stays a
// total function of the visible window. Empty window: empty string.
func RootHash(records []AuditRecord) string {
	return rootHash(records, func(source string) (string, error) {
		return HashBytes([]byte(source)), nil
	})
}

// rootHash is RootHash with an injectable digest so the degraded path is
// testable. When the digest fails, the root falls back to the first 64
// characters of the joined source — degraded but still deterministic, and
// visibly not a hex digest.
func rootHash(records []AuditRecord, digest func(string) (string, error)) string {
	if len(records) == 0 {
		return ""
	}
	parts := make([]string, len(records))
	for i, r := range records {
		if r.Hash != "" {
			parts[i] = r.Hash
		} else {
			parts[i] = r.SignatureToken()
		}
	}
	source := strings.Join(parts, "|")
	sum, err := digest(source)
	if err != nil {
		if len(source) > 64 {
			return source[:64]
		}
		return source
	}
	return sum
}
