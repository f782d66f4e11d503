package ledger

import "strings"

// Admissibility scoring starts from a baseline and subtracts a fixed penalty
// for each risk marker present on the record. The weights live in one policy
// table so they can be tuned and tested without touching control flow.
const scoreBaseline = 92

// scorePenalty is one row of the scoring policy: a fixed deduction plus the
// remediation tip shown when it applies.
type scorePenalty struct {
	name    string
	points  int
	applies func(AuditRecord) bool
	tip     string
}

var scorePolicy = []scorePenalty{
	{
		name:    "missing_hash",
		points:  35,
		applies: func(r AuditRecord) bool { return r.Hash == "" },
		tip:     "Re-verify source checksum to restore integrity score.",
	},
	{
		name:   "failed_login",
		points: 20,
		applies: func(r AuditRecord) bool {
			tag := strings.ToLower(r.EventType)
			return strings.Contains(tag, "login") && strings.Contains(tag, "failed")
		},
		tip: "Review failed authentication attempts and rotate credentials.",
	},
	{
		name:    "tampered",
		points:  40,
		applies: func(r AuditRecord) bool { return r.Status() == StatusTampered },
		tip:     "Initiate chain-of-custody remediation and re-ingest evidence.",
	},
}

// tipClean is returned when no penalty applied.
const tipClean = "No remediation required."

// ScoreResult is a heuristic admissibility score in [0,100] plus the first
// applicable remediation tip.
type ScoreResult struct {
	Score int    `json:"score"`
	Tip   string `json:"tip"`
}

// Score rates a record's admissibility. Pure and deterministic: the same
// record always produces the same result, and scoring has no side effects.
func Score(r AuditRecord) ScoreResult {
	score := scoreBaseline
	tip := ""
	for _, p := range scorePolicy {
		if !p.applies(r) {
			continue
		}
		score -= p.points
		if tip == "" {
			tip = p.tip
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if tip == "" {
		tip = tipClean
	}
	return ScoreResult{Score: score, Tip: tip}
}
