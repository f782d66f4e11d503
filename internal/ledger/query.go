package ledger

import (
	"fmt"
	"strings"
)

// QueryResult is the outcome of a free-text query: the ids that matched and
// a human-readable summary of the match count.
type QueryResult struct {
	MatchIDs map[string]bool
	Summary  string
}

// Matched reports whether the query matched the given record id. An empty
// query (nil MatchIDs) matches everything — free-text filtering is cleared.
func (q QueryResult) Matched(id string) bool {
	if q.MatchIDs == nil {
		return true
	}
	return q.MatchIDs[id]
}

// Query matches free text against a case-insensitive concatenation of each
// record's event type, actor, resource, hash, and prev-hash. An empty query
// clears text filtering rather than matching nothing.
func Query(records []AuditRecord, query string) QueryResult {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return QueryResult{Summary: "No query provided."}
	}

	matches := make(map[string]bool)
	for _, r := range records {
		hay := strings.ToLower(strings.Join([]string{
			r.EventType, r.ActorID, r.Resource(), r.Hash, r.PrevHash,
		}, " "))
		if strings.Contains(hay, needle) {
			matches[r.ID] = true
		}
	}

	summary := "No records matched the query."
	if len(matches) > 0 {
		summary = fmt.Sprintf("Matched %d record(s) for %q.", len(matches), query)
	}
	return QueryResult{MatchIDs: matches, Summary: summary}
}

// Filters are the structured filters applied on top of a free-text match
// set. Zero values mean "no filter"; all active filters AND together.
type Filters struct {
	Severity Severity
	Actor    string
}

// Filter returns the records that pass both the query result and the
// structured filters, preserving order. The input slice is not modified.
func Filter(records []AuditRecord, q QueryResult, f Filters) []AuditRecord {
	var out []AuditRecord
	for _, r := range records {
		if !q.Matched(r.ID) {
			continue
		}
		if f.Severity != "" && r.Severity() != f.Severity {
			continue
		}
		if f.Actor != "" && r.ActorID != f.Actor {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Actors returns the distinct non-empty actor ids in the window, in first-
// seen order. Used to populate structured filter choices.
func Actors(records []AuditRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if r.ActorID == "" || seen[r.ActorID] {
			continue
		}
		seen[r.ActorID] = true
		out = append(out, r.ActorID)
	}
	return out
}
