// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package license

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/docbridge/pkg/types"
)

const recordFile = "license.json"

const defaultTimeout = 10 * time.Second

// TrialMaxFileSize is the per-file input size cap for unlicensed use.
const TrialMaxFileSize = 5 << 20 // 5 MiB

// freeConverters is the allow-list of conversions available without a paid
// license.
var freeConverters = map[string]struct{}{
	"md2pdf": {},
}

// IsFreeConverter reports whether the named conversion is in the free tier.
func IsFreeConverter(name string) bool {
	_, ok := freeConverters[name]
	return ok
}

// Status summarizes the current licensing state for callers and the CLI.
type Status struct {
	LicenseType    string   `json:"license_type"`
	Email          string   `json:"email,omitempty"`
	ActivationDate string   `json:"activation_date,omitempty"`
	ExpiryDate     string   `json:"expiry_date,omitempty"`
	Features       []string `json:"features,omitempty"`
	ValidationMode string   `json:"validation_mode,omitempty"`
	MachineBound   bool     `json:"machine_bound"`
	Corrupt        bool     `json:"corrupt,omitempty"`
}

// Manager owns the persisted license record and the activation flow. It is
// constructed once at startup; all methods are safe for sequential CLI use.
type Manager struct {
	dir         string
	fingerprint string
	pub         *rsa.PublicKey
	backend     *backendClient
	now         func() time.Time
}

// Option customizes a Manager, mainly for tests.
type Option func(*Manager)

// WithFingerprint overrides the machine fingerprint.
func WithFingerprint(fp string) Option {
	return func(m *Manager) { m.fingerprint = fp }
}

// WithPublicKey overrides the embedded verification key.
func WithPublicKey(pub *rsa.PublicKey) Option {
	return func(m *Manager) { m.pub = pub }
}

// NewManager creates a license manager storing its record under cfg.Dir.
func NewManager(cfg types.LicenseConfig, opts ...Option) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, types.NewError(types.KindConfiguration, "license directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating license directory: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	m := &Manager{
		dir: cfg.Dir,
		now: time.Now,
	}
	if cfg.Endpoint != "" {
		m.backend = &backendClient{
			endpoint: cfg.Endpoint,
			http:     &http.Client{Timeout: timeout},
		}
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.fingerprint == "" {
		fp, err := MachineFingerprint()
		if err != nil {
			return nil, fmt.Errorf("computing machine fingerprint: %w", err)
		}
		m.fingerprint = fp
	}
	if m.pub == nil {
		m.pub = DefaultPublicKey()
	}
	return m, nil
}

// Fingerprint returns the machine fingerprint the manager binds licenses to.
func (m *Manager) Fingerprint() string { return m.fingerprint }

func (m *Manager) recordPath() string {
	return filepath.Join(m.dir, recordFile)
}

// Load reads the persisted license record. A missing file returns (nil, nil):
// the machine is in trial mode. A present but unparseable file is a
// configuration error, distinguishable from "not activated".
func (m *Manager) Load() (*Record, error) {
	data, err := os.ReadFile(m.recordPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading license record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, types.NewError(types.KindConfiguration, "license record is corrupt").
			WithCause(err).
			WithDetail("path", m.recordPath())
	}
	return &rec, nil
}

// active reports whether rec is a paid license bound to this machine.
func (m *Manager) active(rec *Record) bool {
	return rec != nil &&
		rec.LicenseType == "paid" &&
		rec.MachineID == m.fingerprint &&
		!rec.Expired(m.now())
}

// Status reports the effective licensing state. A corrupt record downgrades
// to trial but is flagged so the CLI can surface it.
func (m *Manager) Status() Status {
	rec, err := m.Load()
	if err != nil {
		return Status{LicenseType: "trial", Corrupt: types.IsKind(err, types.KindConfiguration)}
	}
	if !m.active(rec) {
		return Status{LicenseType: "trial"}
	}
	return Status{
		LicenseType:    rec.LicenseType,
		Email:          rec.Email,
		ActivationDate: rec.ActivationDate,
		ExpiryDate:     rec.ExpiryDate,
		Features:       rec.Features,
		ValidationMode: rec.ValidationMode,
		MachineBound:   true,
	}
}

// Activate validates a license key and binds it to this machine. Online
// validation is tried first when an endpoint is configured; any online
// failure falls back to offline signature verification. The record is never
// partially persisted.
func (m *Manager) Activate(ctx context.Context, key string) (Status, error) {
	rec, mode, err := m.validate(ctx, key)
	if err != nil {
		return Status{}, types.NewError(types.KindLicense, "license key validation failed").
			WithCause(err).
			WithDetail("reason", "validation_failed")
	}

	switch {
	case rec.MachineID == "":
		// Not yet activated anywhere.
	case rec.MachineID == m.fingerprint:
		// Re-activating on the same machine is idempotent.
	case rec.MaxActivations > 1:
		// Multi-seat licenses are not supported yet; fall through to reject.
		fallthrough
	default:
		return Status{}, types.NewError(types.KindLicense, "license already activated on another machine").
			WithDetail("reason", "activation_failed")
	}

	rec.MachineID = m.fingerprint
	rec.ActivationDate = m.now().UTC().Format(time.RFC3339)
	rec.ValidationMode = mode
	rec.LicenseKey = key
	if rec.LicenseType == "" {
		rec.LicenseType = "paid"
	}

	if err := m.persist(rec); err != nil {
		return Status{}, types.NewError(types.KindLicense, "persisting license record failed").
			WithCause(err).
			WithDetail("reason", "activation_failed")
	}
	return m.Status(), nil
}

// validate resolves the key into license data, returning the validation mode
// used ("online" or "offline").
func (m *Manager) validate(ctx context.Context, key string) (*Record, string, error) {
	if m.backend != nil {
		if rec, err := m.backend.validate(ctx, key, m.fingerprint); err == nil {
			return rec, "online", nil
		}
		// Online failures (network, backend, rejection) fall back to offline
		// verification; the embedded key is the source of truth.
	}
	rec, err := ParseKey(key, m.pub)
	if err != nil {
		return nil, "", err
	}
	return rec, "offline", nil
}

// persist writes the record atomically (temp file + rename).
func (m *Manager) persist(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding license record: %w", err)
	}

	tmp, err := os.CreateTemp(m.dir, ".license-*")
	if err != nil {
		return fmt.Errorf("creating temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp record: %w", err)
	}
	if err := os.Rename(tmpName, m.recordPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("installing license record: %w", err)
	}
	return nil
}

// Deactivate deletes the persisted record, returning the machine to trial
// mode. There is no soft deactivate.
func (m *Manager) Deactivate() (Status, error) {
	if _, err := os.Stat(m.recordPath()); os.IsNotExist(err) {
		return Status{}, types.NewError(types.KindLicense, "no license to deactivate").
			WithDetail("reason", "no_license")
	}
	if err := os.Remove(m.recordPath()); err != nil {
		return Status{}, fmt.Errorf("removing license record: %w", err)
	}
	return m.Status(), nil
}

// HasFeatureAccess reports whether the named feature (a conversion key such
// as "md2pdf") is usable: paid licenses consult their feature list, trial
// mode consults the free-tier allow-list.
func (m *Manager) HasFeatureAccess(feature string) bool {
	rec, err := m.Load()
	if err == nil && m.active(rec) {
		return rec.HasFeature(feature)
	}
	return IsFreeConverter(feature)
}

// CheckFileSizeLimit enforces the trial input size cap. Paid licenses are
// unrestricted.
func (m *Manager) CheckFileSizeLimit(path string) error {
	rec, err := m.Load()
	if err == nil && m.active(rec) {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return types.NewError(types.KindValidation, "input file not readable").
			WithCause(err).
			WithDetail("input_path", path)
	}
	if info.Size() > TrialMaxFileSize {
		return types.NewError(types.KindLicense, "file exceeds the trial size limit").
			WithDetail("reason", "file_too_large").
			WithDetail("file_size", info.Size()).
			WithDetail("max_size", int64(TrialMaxFileSize))
	}
	return nil
}
