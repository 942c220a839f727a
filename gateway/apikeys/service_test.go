// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package apikeys

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(repo Repository) *Service {
	return NewService(repo, "ak", nil)
}

func testCreateParams() CreateParams {
	return CreateParams{
		OrganizationID: "org-1",
		CreatorID:      "user-1",
		Name:           "ci-agent",
		Permissions:    Permissions{"campaigns": {"read", "create"}},
	}
}

func TestGenerateKeyFormat(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	plaintext, key, err := svc.Generate(context.Background(), testCreateParams())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.HasPrefix(plaintext, "ak_") {
		t.Errorf("Expected plaintext to start with ak_, got %s", plaintext)
	}
	secret := strings.TrimPrefix(plaintext, "ak_")
	if len(secret) != 32 {
		t.Errorf("Expected 32-character secret, got %d", len(secret))
	}
	for _, c := range secret {
		if !strings.ContainsRune(secretAlphabet, c) {
			t.Errorf("Secret contains character outside alphabet: %q", c)
		}
	}

	if key.SecretHash == plaintext {
		t.Error("Secret hash must not equal the plaintext")
	}
	if key.SecretHash != hashKey(plaintext) {
		t.Error("Stored hash does not match digest of plaintext")
	}
	if key.KeyPrefix != plaintext[:11] {
		t.Errorf("Expected display prefix %s, got %s", plaintext[:11], key.KeyPrefix)
	}
	if !key.IsActive {
		t.Error("New keys should be active")
	}
	if key.ID == "" {
		t.Error("Expected a generated key ID")
	}
}

func TestGenerateUniquePlaintexts(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		params := testCreateParams()
		params.Name = params.Name + "-" + strings.Repeat("x", i+1)
		plaintext, _, err := svc.Generate(context.Background(), params)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if seen[plaintext] {
			t.Fatalf("Duplicate plaintext generated: %s", plaintext)
		}
		seen[plaintext] = true
	}
}

func TestGenerateParamValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateParams)
		wantErr error
	}{
		{
			name:    "missing organization",
			mutate:  func(p *CreateParams) { p.OrganizationID = "" },
			wantErr: ErrInvalidOrganization,
		},
		{
			name:    "blank name",
			mutate:  func(p *CreateParams) { p.Name = "   " },
			wantErr: ErrInvalidName,
		},
		{
			name:    "no permissions",
			mutate:  func(p *CreateParams) { p.Permissions = nil },
			wantErr: ErrNoPermissions,
		},
		{
			name: "expiry in the past",
			mutate: func(p *CreateParams) {
				past := time.Now().UTC().Add(-time.Hour)
				p.ExpiresAt = &past
			},
			wantErr: ErrExpiryInPast,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockRepository()
			svc := newTestService(repo)

			params := testCreateParams()
			tt.mutate(&params)

			_, _, err := svc.Generate(context.Background(), params)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGenerateDuplicateName(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	if _, _, err := svc.Generate(context.Background(), testCreateParams()); err != nil {
		t.Fatalf("First Generate failed: %v", err)
	}

	_, _, err := svc.Generate(context.Background(), testCreateParams())
	if !errors.Is(err, ErrDuplicateKeyName) {
		t.Errorf("Expected ErrDuplicateKeyName, got %v", err)
	}
}

func TestValidateAcceptsMintedKey(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	plaintext, key, err := svc.Generate(context.Background(), testCreateParams())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	result, err := svc.Validate(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid {
		t.Fatalf("Expected minted key to validate, got reason %q", result.Reason)
	}
	if result.Key == nil {
		t.Fatal("Expected key info on valid result")
	}
	if result.Key.ID != key.ID {
		t.Errorf("Expected key ID %s, got %s", key.ID, result.Key.ID)
	}
	if result.Key.OrganizationID != "org-1" {
		t.Errorf("Expected organization org-1, got %s", result.Key.OrganizationID)
	}
	if !HasPermission(result.Key.Permissions, "campaigns", "read") {
		t.Error("Expected campaigns.read permission on key info")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	plaintext, _, err := svc.Generate(context.Background(), testCreateParams())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Same display prefix, different tail: the candidate is found but the
	// hash comparison must fail.
	forged := plaintext[:len(plaintext)-4] + "AAAA"
	if forged == plaintext {
		forged = plaintext[:len(plaintext)-4] + "BBBB"
	}

	result, err := svc.Validate(context.Background(), forged)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Error("Expected forged key to be rejected")
	}
	if result.Reason != ReasonInvalid {
		t.Errorf("Expected reason %q, got %q", ReasonInvalid, result.Reason)
	}
}

func TestValidateRejectsRevokedKey(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	plaintext, key, err := svc.Generate(context.Background(), testCreateParams())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := svc.Revoke(context.Background(), key.ID, key.OrganizationID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	result, err := svc.Validate(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Error("Expected revoked key to be rejected")
	}
}

func TestValidateRejectsExpiredKey(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	expiry := time.Now().UTC().Add(time.Minute)
	params := testCreateParams()
	params.ExpiresAt = &expiry

	plaintext, key, err := svc.Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Age the stored record past its expiry
	past := time.Now().UTC().Add(-time.Minute)
	repo.mu.Lock()
	repo.keys[key.ID].ExpiresAt = &past
	repo.mu.Unlock()

	result, err := svc.Validate(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Error("Expected expired key to be rejected")
	}
	if result.Reason != ReasonExpired {
		t.Errorf("Expected reason %q, got %q", ReasonExpired, result.Reason)
	}
}

func TestValidateMalformedSkipsRepository(t *testing.T) {
	repo := NewMockRepository()
	repo.ListByPrefixErr = errors.New("repository should not be reached")
	svc := newTestService(repo)

	for _, plaintext := range []string{
		"",
		"ak_",
		"ak_tooshort",
		"ak_" + strings.Repeat("!", 32),
		"sk_" + strings.Repeat("a", 32),
		strings.Repeat("a", 35),
	} {
		result, err := svc.Validate(context.Background(), plaintext)
		if err != nil {
			t.Fatalf("Validate(%q) hit the repository: %v", plaintext, err)
		}
		if result.Valid {
			t.Errorf("Expected %q to be rejected", plaintext)
		}
		if result.Reason != ReasonInvalid {
			t.Errorf("Expected reason %q for %q, got %q", ReasonInvalid, plaintext, result.Reason)
		}
	}
}

func TestValidateTouchesLastUsed(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	plaintext, _, err := svc.Generate(context.Background(), testCreateParams())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	result, err := svc.Validate(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid {
		t.Fatal("Expected key to validate")
	}

	// The touch runs detached from the request, so poll for it
	deadline := time.Now().Add(2 * time.Second)
	for repo.TouchCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("last_used_at was never updated")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestValidateSurvivesTouchFailure(t *testing.T) {
	repo := NewMockRepository()
	repo.UpdateLastErr = errors.New("connection reset")
	svc := newTestService(repo)

	plaintext, _, err := svc.Generate(context.Background(), testCreateParams())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	result, err := svc.Validate(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid {
		t.Error("Touch failure must not fail validation")
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		perms    Permissions
		resource string
		action   string
		want     bool
	}{
		{"exact grant", Permissions{"campaigns": {"read", "create"}}, "campaigns", "create", true},
		{"action not granted", Permissions{"campaigns": {"read"}}, "campaigns", "create", false},
		{"resource not granted", Permissions{"campaigns": {"read"}}, "assets", "read", false},
		{"wildcard action", Permissions{"assets": {"*"}}, "assets", "generate", true},
		{"wildcard scoped to resource", Permissions{"assets": {"*"}}, "campaigns", "read", false},
		{"nil permissions deny", nil, "campaigns", "read", false},
		{"empty action list denies", Permissions{"campaigns": {}}, "campaigns", "read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.perms, tt.resource, tt.action); got != tt.want {
				t.Errorf("HasPermission(%v, %s, %s) = %v, want %v", tt.perms, tt.resource, tt.action, got, tt.want)
			}
		})
	}
}

func TestRevokeUnknownKey(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	err := svc.Revoke(context.Background(), "missing", "org-1")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	repo := NewMockRepository()
	svc := newTestService(repo)

	_, key, err := svc.Generate(context.Background(), testCreateParams())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := svc.Delete(context.Background(), key.ID, key.OrganizationID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := svc.Get(context.Background(), key.ID, key.OrganizationID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
}
