// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"axonflow/campaign-gateway/shared/logger"
)

const (
	// DefaultKeyPrefix is the product prefix of minted keys
	DefaultKeyPrefix = "ak"

	// secretLength is the number of random characters after the prefix
	secretLength = 32

	// displaySecretChars is how much of the secret the display prefix
	// exposes. Short enough to stay non-secret, long enough to keep
	// prefix collisions rare.
	displaySecretChars = 8

	secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	touchTimeout = 5 * time.Second
)

// Service mints and validates API keys
type Service struct {
	repo   Repository
	prefix string
	log    *logger.Logger
}

// NewService creates a Service. An empty prefix falls back to
// DefaultKeyPrefix.
func NewService(repo Repository, prefix string, log *logger.Logger) *Service {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if log == nil {
		log = logger.New("apikeys")
	}
	return &Service{repo: repo, prefix: prefix, log: log}
}

// Generate mints a new key and returns the plaintext exactly once,
// together with the persisted record. The plaintext is never stored.
func (s *Service) Generate(ctx context.Context, params CreateParams) (string, *APIKey, error) {
	if err := validateCreateParams(params); err != nil {
		return "", nil, err
	}

	secret, err := randomSecret(secretLength)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate key secret: %w", err)
	}

	plaintext := s.prefix + "_" + secret
	now := time.Now().UTC()

	key := &APIKey{
		ID:             uuid.New().String(),
		OrganizationID: params.OrganizationID,
		CreatorID:      params.CreatorID,
		Name:           params.Name,
		Description:    params.Description,
		KeyPrefix:      s.displayPrefix(plaintext),
		SecretHash:     hashKey(plaintext),
		Permissions:    params.Permissions,
		Metadata:       params.Metadata,
		IsActive:       true,
		ExpiresAt:      params.ExpiresAt,
		CreatedAt:      now,
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return "", nil, err
	}

	s.log.Info(key.OrganizationID, "", "API key created", map[string]interface{}{
		"key_id":     key.ID,
		"key_prefix": key.KeyPrefix,
		"name":       key.Name,
	})

	return plaintext, key, nil
}

// Validate checks a presented plaintext key. Candidates are narrowed by
// the non-secret display prefix; the secret hash comparison itself is
// constant time. A successful validation updates last_used_at in the
// background without blocking the request.
func (s *Service) Validate(ctx context.Context, plaintext string) (*ValidationResult, error) {
	if !s.wellFormed(plaintext) {
		return &ValidationResult{Valid: false, Reason: ReasonInvalid}, nil
	}

	candidates, err := s.repo.ListActiveByPrefix(ctx, s.displayPrefix(plaintext))
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate keys: %w", err)
	}

	presented := []byte(hashKey(plaintext))

	for _, key := range candidates {
		if subtle.ConstantTimeCompare(presented, []byte(key.SecretHash)) != 1 {
			continue
		}

		if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now().UTC()) {
			return &ValidationResult{Valid: false, Reason: ReasonExpired}, nil
		}

		go s.touchLastUsed(key.ID, key.OrganizationID)

		return &ValidationResult{
			Valid: true,
			Key: &KeyInfo{
				ID:             key.ID,
				OrganizationID: key.OrganizationID,
				Name:           key.Name,
				Permissions:    key.Permissions,
				Metadata:       key.Metadata,
			},
		}, nil
	}

	return &ValidationResult{Valid: false, Reason: ReasonInvalid}, nil
}

// Get returns a key scoped to its organization
func (s *Service) Get(ctx context.Context, id, orgID string) (*APIKey, error) {
	return s.repo.GetByID(ctx, id, orgID)
}

// List returns all keys for an organization, newest first
func (s *Service) List(ctx context.Context, orgID string) ([]*APIKey, error) {
	return s.repo.ListByOrganization(ctx, orgID)
}

// Revoke deactivates a key. Revoked keys fail validation but remain
// visible in listings for audit purposes.
func (s *Service) Revoke(ctx context.Context, id, orgID string) error {
	if err := s.repo.Deactivate(ctx, id, orgID); err != nil {
		return err
	}
	s.log.Info(orgID, "", "API key revoked", map[string]interface{}{"key_id": id})
	return nil
}

// Delete permanently removes a key
func (s *Service) Delete(ctx context.Context, id, orgID string) error {
	if err := s.repo.Delete(ctx, id, orgID); err != nil {
		return err
	}
	s.log.Info(orgID, "", "API key deleted", map[string]interface{}{"key_id": id})
	return nil
}

// touchLastUsed runs detached from the request; failures only warn
func (s *Service) touchLastUsed(id, orgID string) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()

	if err := s.repo.UpdateLastUsed(ctx, id, time.Now().UTC()); err != nil {
		s.log.Warn(orgID, "", "Failed to update api key last_used_at", map[string]interface{}{
			"key_id": id,
			"error":  err.Error(),
		})
	}
}

// wellFormed rejects keys that cannot possibly have been minted here
// before any repository round trip.
func (s *Service) wellFormed(plaintext string) bool {
	if !strings.HasPrefix(plaintext, s.prefix+"_") {
		return false
	}
	secret := plaintext[len(s.prefix)+1:]
	if len(secret) != secretLength {
		return false
	}
	for _, c := range secret {
		if !strings.ContainsRune(secretAlphabet, c) {
			return false
		}
	}
	return true
}

// displayPrefix derives the non-secret prefix persisted for lookups,
// e.g. "ak_3fA9xQ2b" for "ak_3fA9xQ2b...".
func (s *Service) displayPrefix(plaintext string) string {
	return plaintext[:len(s.prefix)+1+displaySecretChars]
}

func validateCreateParams(params CreateParams) error {
	if params.OrganizationID == "" {
		return ErrInvalidOrganization
	}
	if strings.TrimSpace(params.Name) == "" {
		return ErrInvalidName
	}
	if len(params.Permissions) == 0 {
		return ErrNoPermissions
	}
	if params.ExpiresAt != nil && !params.ExpiresAt.After(time.Now().UTC()) {
		return ErrExpiryInPast
	}
	return nil
}

// hashKey computes the fixed-cost irreversible digest of a plaintext key
func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// randomSecret draws n characters from the key alphabet using crypto/rand
func randomSecret(n int) (string, error) {
	max := big.NewInt(int64(len(secretAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = secretAlphabet[idx.Int64()]
	}
	return string(b), nil
}
