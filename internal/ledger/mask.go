package ledger

import "strings"

// MaskActor obfuscates an actor identifier for display while keeping enough
// shape to recognize it. Email-style ids keep their domain; other ids keep a
// short prefix and suffix. Total function: every input yields a usable string
// and the stored value is never altered. Slicing is rune-based so multi-byte
// identifiers mask cleanly.
func MaskActor(actorID string) string {
	if actorID == "" {
		return "system"
	}
	if at := strings.Index(actorID, "@"); at >= 0 {
		local, domain := actorID[:at], actorID[at+1:]
		if lr := []rune(local); len(lr) > 2 {
			local = string(lr[:2])
		}
		return local + "****@" + domain
	}
	runes := []rune(actorID)
	if len(runes) <= 4 {
		return actorID + "****"
	}
	return string(runes[:3]) + "****" + string(runes[len(runes)-2:])
}

// MaskIP obfuscates an IP address for display. Dotted-quad addresses keep
// the first two octets; anything else keeps a six-character prefix.
func MaskIP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return parts[0] + "." + parts[1] + ".***.***"
	}
	if runes := []rune(ip); len(runes) > 6 {
		ip = string(runes[:6])
	}
	return ip + "****"
}
