package escalation

import (
	"encoding/base64"
	"fmt"
	"regexp"

	"golang.org/x/crypto/argon2"
)

// ValidationError rejects malformed identity-bearing input before any side
// effect takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var patientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)

// validatePatientID enforces the accepted identifier format. Identity-bearing
// data is never silently accepted.
func validatePatientID(patientID string) error {
	if patientID == "" {
		return &ValidationError{Field: "patient_id", Reason: "empty"}
	}
	if !patientIDPattern.MatchString(patientID) {
		return &ValidationError{Field: "patient_id", Reason: "must be 6-64 characters of [A-Za-z0-9_-]"}
	}
	return nil
}

// Encryptor derives the one-way stored form of a patient identifier. The
// raw id never reaches the case store, notification payloads, or audit
// entries; only this derivation does.
type Encryptor struct {
	salt []byte
}

// NewEncryptor creates an Encryptor over a service-wide salt.
func NewEncryptor(salt []byte) *Encryptor {
	return &Encryptor{salt: salt}
}

// Encrypt returns the versioned one-way form, e.g. "enc:v1$...". Argon2id
// makes offline reversal of short identifier spaces expensive.
func (e *Encryptor) Encrypt(patientID string) string {
	key := argon2.IDKey([]byte(patientID), e.salt, 1, 64*1024, 4, 32)
	return "enc:v1$" + base64.RawStdEncoding.EncodeToString(key)
}
