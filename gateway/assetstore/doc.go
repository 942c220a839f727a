// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package assetstore archives generated asset payloads in an object
// store. Backends exist for Amazon S3 (and S3-compatible services),
// Azure Blob Storage, Google Cloud Storage, and a local directory for
// development. All backends address objects by slash-separated keys
// and report a provider-qualified location URI.
package assetstore
