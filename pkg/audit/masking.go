package audit

import "strings"

// Mask produces a one-way, non-reversible partial redaction of an
// identifier for logging and display. The masked form never equals the raw
// input.
//
// Rules: UUID-like identifiers keep the first and last four characters;
// all-digit identifiers keep only the last two; everything else keeps the
// first two. Inputs too short for their window are masked fully.
func Mask(id string) string {
	if id == "" {
		return "***"
	}

	switch {
	case looksLikeUUID(id):
		return id[:4] + "***" + id[len(id)-4:]
	case allDigits(id):
		if len(id) <= 2 {
			return "***"
		}
		return "***" + id[len(id)-2:]
	default:
		if len(id) <= 2 {
			return "***"
		}
		return id[:2] + "***"
	}
}

func looksLikeUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	for i, r := range id {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if r != '-' {
				return false
			}
			continue
		}
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func allDigits(id string) bool {
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
