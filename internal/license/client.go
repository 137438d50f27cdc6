// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// retryBaseDelay is the base duration for exponential backoff when the
// license backend rate-limits a validation request. Activation is an
// interactive command, so the delays stay short. Tests override this to
// avoid real sleeps.
var retryBaseDelay = 2 * time.Second

// validationRetries bounds how many 429 responses a single validation
// attempt absorbs before giving up.
const validationRetries = 2

// backendClient talks to the optional license validation endpoint.
type backendClient struct {
	endpoint string
	http     *http.Client
}

// validate POSTs the key and machine fingerprint to the backend and decodes
// the returned license record. HTTP 429 responses are retried with
// exponential backoff (2s, 4s); any other non-200 status is an error, which
// the manager treats as a cue to fall back to offline verification.
func (c *backendClient) validate(ctx context.Context, key, machineID string) (*Record, error) {
	body, err := json.Marshal(map[string]string{
		"license_key": key,
		"machine_id":  machineID,
	})
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < validationRetries {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			backoff := time.Duration(1<<attempt) * retryBaseDelay
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}

		rec, err := decodeValidation(resp)
		resp.Body.Close()
		return rec, err
	}
}

func decodeValidation(resp *http.Response) (*Record, error) {
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("license backend returned %s", resp.Status)
	}
	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding backend response: %w", err)
	}
	return &rec, nil
}
