// Package ledger defines the audit record model and the pure functions that
// operate on it: content hashing, chain verification, masking, admissibility
// scoring, free-text query, and custody narratives.
//
// Records are produced by the ledger store and consumed read-only by every
// other package. Status and Severity are never persisted — they are derived
// on the client from the event type and payload, so the same wire record
// always yields the same presentation.
package ledger

import (
	"encoding/json"
	"strings"
)

// Status is the derived verification state of a record.
type Status string

const (
	StatusVerified Status = "VERIFIED"
	StatusPending  Status = "PENDING"
	StatusTampered Status = "TAMPERED"
)

// Severity is the derived display severity of a record.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// EventHeartbeat is emitted periodically by the store so a silent ledger is
// distinguishable from a dead feed.
const EventHeartbeat = "DEH_HEARTBEAT"

// AuditRecord is a single entry in the hash-chained audit ledger.
//
// The chain links entries: each record's PrevHash must equal the Hash of the
// immediately preceding record in ledger order. Records are immutable once
// written; tampering with any record breaks the chain from that point on.
type AuditRecord struct {
	ID         string  `json:"id"`
	EventType  string  `json:"eventType"`
	ActorID    string  `json:"actorId,omitempty"`
	CreatedAt  string  `json:"createdAt"`
	ResourceID string  `json:"resourceId,omitempty"`
	Hash       string  `json:"hash"`
	PrevHash   string  `json:"prevHash"`
	Payload    Payload `json:"payload,omitempty"`
}

// Payload is the structured metadata attached to a record. Every field is
// optional; decoding coalesces the aliases historically written by different
// ingestion paths (ip/ipAddress, fingerprint/browserFingerprint/userAgent,
// transactionId/txId/dbTxId, originNode/node/origin).
type Payload struct {
	Status        string `json:"status,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Action        string `json:"action,omitempty"`
	IP            string `json:"ip,omitempty"`
	Fingerprint   string `json:"fingerprint,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	OriginNode    string `json:"originNode,omitempty"`
	ResourceID    string `json:"resourceId,omitempty"`
	ExhibitID     string `json:"exhibitId,omitempty"`
	StorageKey    string `json:"storageKey,omitempty"`
	Detail        string `json:"detail,omitempty"`
	Message       string `json:"message,omitempty"`
}

// UnmarshalJSON decodes a payload, folding field aliases into the canonical
// names. Malformed payloads decode to the zero Payload rather than failing
// the whole record.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var aux struct {
		Status             string `json:"status"`
		Reason             string `json:"reason"`
		Action             string `json:"action"`
		IP                 string `json:"ip"`
		IPAddress          string `json:"ipAddress"`
		Fingerprint        string `json:"fingerprint"`
		BrowserFingerprint string `json:"browserFingerprint"`
		UserAgent          string `json:"userAgent"`
		TransactionID      string `json:"transactionId"`
		TxID               string `json:"txId"`
		DBTxID             string `json:"dbTxId"`
		OriginNode         string `json:"originNode"`
		Node               string `json:"node"`
		Origin             string `json:"origin"`
		ResourceID         string `json:"resourceId"`
		ExhibitID          string `json:"exhibitId"`
		StorageKey         string `json:"storageKey"`
		Detail             string `json:"detail"`
		Message            string `json:"message"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		*p = Payload{}
		return nil
	}
	*p = Payload{
		Status:        aux.Status,
		Reason:        aux.Reason,
		Action:        aux.Action,
		IP:            coalesce(aux.IP, aux.IPAddress),
		Fingerprint:   coalesce(aux.Fingerprint, aux.BrowserFingerprint, aux.UserAgent),
		TransactionID: coalesce(aux.TransactionID, aux.TxID, aux.DBTxID),
		OriginNode:    coalesce(aux.OriginNode, aux.Node, aux.Origin),
		ResourceID:    aux.ResourceID,
		ExhibitID:     aux.ExhibitID,
		StorageKey:    aux.StorageKey,
		Detail:        aux.Detail,
		Message:       aux.Message,
	}
	return nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Resource returns the best available reference to the subject of the event:
// the record's own resource id, then the payload's resource, exhibit, or
// storage key.
func (r AuditRecord) Resource() string {
	return coalesce(r.ResourceID, r.Payload.ResourceID, r.Payload.ExhibitID, r.Payload.StorageKey)
}

// Status derives the verification state from the event type and payload.
// Revocation and compromise markers dominate pending markers only when the
// pending marker is absent — a pending re-verification stays PENDING.
func (r AuditRecord) Status() Status {
	tag := strings.ToUpper(r.EventType)
	if strings.Contains(tag, "PENDING") || r.Payload.Status == string(StatusPending) {
		return StatusPending
	}
	if strings.Contains(tag, "REVOKED") || strings.Contains(tag, "COMPROMISED") || r.Payload.Status == string(StatusTampered) {
		return StatusTampered
	}
	return StatusVerified
}

// Severity derives the display severity from the event type and payload.
func (r AuditRecord) Severity() Severity {
	tag := strings.ToUpper(r.EventType)
	if strings.Contains(tag, "FAILED") || strings.Contains(tag, "UNAUTHORIZED") || r.Payload.Status == string(StatusTampered) {
		return SeverityHigh
	}
	if strings.Contains(tag, "POLICY") || strings.Contains(tag, "EXCEPTION") {
		return SeverityMedium
	}
	return SeverityLow
}

// Actor returns the acting principal, or "system" when the record carries no
// actor id.
func (r AuditRecord) Actor() string {
	if r.ActorID == "" {
		return "system"
	}
	return r.ActorID
}

// SignatureToken renders the record's verification token for display:
// "0x" + the first three and last three characters of the hash. The token is
// a reused content hash, not an asymmetric signature — callers must not treat
// it as proof of non-repudiation.
func (r AuditRecord) SignatureToken() string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(r.Hash, "0x"), "0X")
	if trimmed == "" {
		return "0x000...000"
	}
	if len(trimmed) <= 10 {
		return "0x" + trimmed
	}
	return "0x" + trimmed[:3] + "..." + trimmed[len(trimmed)-3:]
}

// BaselineEntry is one row of the baseline hash registry: the content hash
// recorded for an exhibit at ingestion time. IntegrityHash is empty when no
// hash was captured (legacy ingestion) — such entries can never produce a
// CLEAN or RED_FLAG classification.
type BaselineEntry struct {
	ExhibitID     string `json:"exhibitId"`
	Filename      string `json:"filename"`
	IntegrityHash string `json:"integrityHash,omitempty"`
}
