// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// snapshotLimit bounds stored body and response snapshots
const snapshotLimit = 500

// Entry is one request/response record. Created once after the response
// is computed; never mutated afterwards.
type Entry struct {
	ID              string    `json:"id" bson:"_id"`
	RequestID       string    `json:"request_id" bson:"request_id"`
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
	APIKeyID        string    `json:"api_key_id" bson:"api_key_id"`
	OrganizationID  string    `json:"organization_id" bson:"organization_id"`
	Method          string    `json:"method" bson:"method"`
	Path            string    `json:"path" bson:"path"`
	Action          string    `json:"action" bson:"action"`
	StatusCode      int       `json:"status_code" bson:"status_code"`
	DurationMs      int64     `json:"duration_ms" bson:"duration_ms"`
	RequestBody     string    `json:"request_body,omitempty" bson:"request_body,omitempty"`
	ResponseSummary string    `json:"response_summary,omitempty" bson:"response_summary,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

// Truncate bounds a snapshot for storage
func Truncate(s string) string {
	if len(s) > snapshotLimit {
		return s[:snapshotLimit] + "..."
	}
	return s
}

func generateEntryID() string {
	return fmt.Sprintf("audit_%d_%s", time.Now().Unix(), randomString(8))
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) string {
	max := big.NewInt(int64(len(idAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			b[i] = idAlphabet[time.Now().UnixNano()%int64(len(idAlphabet))]
			continue
		}
		b[i] = idAlphabet[idx.Int64()]
	}
	return string(b)
}
