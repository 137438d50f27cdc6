// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package license

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/docbridge/pkg/types"
)

const trialDBFile = "trial.db"

// TrialConversionLimit is the hard cap on free-tier conversions.
const TrialConversionLimit = 10

// trialDuration is the nominal trial length. The expiry computation is
// count-based only; this constant is not consulted by TrialStatus and is
// retained for a future time-based gate.
const trialDuration = 14 * 24 * time.Hour

// TrialStatus reports the free-tier quota state. Expired is determined
// solely by the conversion count, never by elapsed time.
type TrialStatus struct {
	Used      int       `json:"conversions_used"`
	Remaining int       `json:"conversions_remaining"`
	Limit     int       `json:"trial_limit"`
	Expired   bool      `json:"expired"`
	FirstRun  time.Time `json:"first_run"`
}

// TrialStore persists the conversion usage rows and the first-run timestamp.
type TrialStore struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

// OpenTrialStore opens or creates the trial database under dir and ensures
// the schema and the first_run marker exist.
func OpenTrialStore(dir string) (*TrialStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trial directory: %w", err)
	}

	dbPath := filepath.Join(dir, trialDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening trial database: %w", err)
	}

	s := &TrialStore{db: db, limit: TrialConversionLimit, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating trial schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *TrialStore) Close() error {
	return s.db.Close()
}

func (s *TrialStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			converter TEXT NOT NULL,
			input_file TEXT NOT NULL,
			output_file TEXT,
			timestamp TEXT NOT NULL,
			file_size INTEGER,
			success INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('first_run', ?)`,
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording first run: %w", err)
	}
	return nil
}

// Used returns the number of successful conversions recorded.
func (s *TrialStore) Used() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT count(*) FROM conversions WHERE success = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting conversions: %w", err)
	}
	return n, nil
}

// Remaining returns max(0, limit - used).
func (s *TrialStore) Remaining() (int, error) {
	used, err := s.Used()
	if err != nil {
		return 0, err
	}
	remaining := s.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// CanConvert reports whether a free-tier conversion with the named converter
// may proceed: the converter must be in the free allow-list and quota must
// remain. The returned error is a license error (trial-expired when the
// quota is exhausted).
func (s *TrialStore) CanConvert(conversionType string) error {
	if !IsFreeConverter(conversionType) {
		return types.NewError(types.KindLicense, "conversion not available in the free tier").
			WithDetail("reason", "feature_locked").
			WithDetail("conversion_type", conversionType)
	}

	used, err := s.Used()
	if err != nil {
		return fmt.Errorf("checking trial quota: %w", err)
	}
	if used >= s.limit {
		return types.NewError(types.KindTrialExpired, "trial conversion limit reached").
			WithDetail("conversions_used", used).
			WithDetail("trial_limit", s.limit)
	}
	return nil
}

// RecordConversion appends one usage row. The quota is re-checked first and
// the row is not written when the check fails, so the stored count never
// passes the limit through this path. Failed conversions are recorded but do
// not count toward the limit.
func (s *TrialStore) RecordConversion(conversionType, inputFile, outputFile string, fileSize int64, success bool) error {
	if err := s.CanConvert(conversionType); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT INTO conversions (converter, input_file, output_file, timestamp, file_size, success)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conversionType, inputFile, outputFile,
		s.now().UTC().Format(time.RFC3339Nano), fileSize, boolToInt(success),
	)
	if err != nil {
		return fmt.Errorf("recording conversion: %w", err)
	}
	return nil
}

// Status returns the current quota state.
func (s *TrialStore) Status() (TrialStatus, error) {
	used, err := s.Used()
	if err != nil {
		return TrialStatus{}, err
	}
	remaining := s.limit - used
	if remaining < 0 {
		remaining = 0
	}

	var firstRun time.Time
	var raw string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'first_run'`).Scan(&raw); err == nil {
		firstRun, _ = time.Parse(time.RFC3339, raw)
	}

	return TrialStatus{
		Used:      used,
		Remaining: remaining,
		Limit:     s.limit,
		Expired:   remaining == 0,
		FirstRun:  firstRun,
	}, nil
}

// Reset clears all usage rows. Test-only; production code never calls it.
func (s *TrialStore) Reset() error {
	if _, err := s.db.Exec(`DELETE FROM conversions`); err != nil {
		return fmt.Errorf("resetting trial usage: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
