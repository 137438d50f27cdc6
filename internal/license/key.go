// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package license

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"
	"time"
)

// KeyPrefix is the fixed first segment of every license key.
const KeyPrefix = "DOCB"

// publicKeyPEM is the embedded verification key for offline license keys.
// The matching signing key never ships.
const publicKeyPEM = `-----BEGIN PUBLIC KEY-----
MIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8AMIIBCgKCAQEAw9tSzWHQ1hABH4z6YCd+
7nBKhoZr9MY+6dn0BBnmvypBT+0EBLesTM4eEIrjtrum0ZFm/E02Csh6TTQDXqPe
ZB5pAsE2pqrtUcop5K9S9r4PfsvgD5Yzv9at3zTpi0ky35adC9zZ9BU3LtbWBpe/
mGJ0cs8qqlhLk5QrRp48SbbU/povmVznnCLtEomC88yL4+A4aa4t9GzSBT4ji9Qx
sCqPhJPowUds67ElkztLtiHWYjIMU4j6BO6bdTkqQGrTsm3lbIxZzqbdCV713GGG
AT18DsFIxHtExcpy9RolL7MP9tZ+AIdzs6L8wHcEJ2DBVMQw9p/OO/P0jcKOTli8
vQIDAQAB
-----END PUBLIC KEY-----`

// Record is the persisted license document. A paid license is active on this
// machine only when MachineID matches the current fingerprint; an empty
// MachineID means the license has not been activated anywhere yet.
type Record struct {
	LicenseType    string   `json:"license_type"`
	Email          string   `json:"email,omitempty"`
	ActivationDate string   `json:"activation_date,omitempty"`
	ExpiryDate     string   `json:"expiry_date,omitempty"`
	MachineID      string   `json:"machine_id,omitempty"`
	Features       []string `json:"features"`
	ValidationMode string   `json:"validation_mode,omitempty"`
	LicenseKey     string   `json:"license_key,omitempty"`
	MaxActivations int      `json:"max_activations,omitempty"`
}

// Expired reports whether the record carries an expiry date in the past.
// A missing or unparseable expiry date means the license does not expire.
func (r *Record) Expired(now time.Time) bool {
	if r.ExpiryDate == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, r.ExpiryDate)
	if err != nil {
		return false
	}
	return now.After(t)
}

// HasFeature reports whether the record's feature list grants the named
// feature, either explicitly or via "all".
func (r *Record) HasFeature(feature string) bool {
	for _, f := range r.Features {
		if f == "all" || f == feature {
			return true
		}
	}
	return false
}

var pssOpts = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}

// DefaultPublicKey returns the embedded verification key.
func DefaultPublicKey() *rsa.PublicKey {
	pub, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		// The embedded constant is validated at build time by tests; a parse
		// failure here is an internal invariant violation.
		panic(fmt.Sprintf("license: embedded public key invalid: %v", err))
	}
	return pub
}

func parsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", key)
	}
	return rsaKey, nil
}

// ParseKey verifies and decodes an offline license key of the form
// PREFIX:SIGNATURE:DATA. The signature is RSA-PSS over SHA-256 of the raw
// payload; the payload is the JSON license record. Any structural, decoding,
// or signature failure yields a generic error so callers report a uniform
// "invalid key".
func ParseKey(key string, pub *rsa.PublicKey) (*Record, error) {
	parts := strings.SplitN(strings.TrimSpace(key), ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed key: want PREFIX:SIGNATURE:DATA")
	}
	if parts[0] != KeyPrefix {
		return nil, fmt.Errorf("unrecognized key prefix %q", parts[0])
	}

	sig, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding signature: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOpts); err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decoding license data: %w", err)
	}
	return &rec, nil
}

// FormatKey assembles a key string from a signature and payload. Used by the
// key-issuing side and by tests; verification lives in ParseKey.
func FormatKey(signature, payload []byte) string {
	return KeyPrefix + ":" +
		base64.StdEncoding.EncodeToString(signature) + ":" +
		base64.StdEncoding.EncodeToString(payload)
}
