// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package apikeys

import "errors"

var (
	// ErrKeyNotFound is returned when a key id does not exist for the organization
	ErrKeyNotFound = errors.New("api key not found")

	// ErrDuplicateKeyName is returned when the organization already has a key with this name
	ErrDuplicateKeyName = errors.New("an api key with this name already exists")

	// ErrInvalidName is returned when the key name is missing
	ErrInvalidName = errors.New("api key name is required")

	// ErrInvalidOrganization is returned when the organization id is missing
	ErrInvalidOrganization = errors.New("organization id is required")

	// ErrNoPermissions is returned when a key would be minted without any grants
	ErrNoPermissions = errors.New("permissions must grant at least one resource")

	// ErrExpiryInPast is returned when the requested expiry is not in the future
	ErrExpiryInPast = errors.New("expiry must be in the future")
)
