// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package budget enforces the organization-wide monthly campaign spend
// cap. A campaign counts its full budget against every calendar month its
// date range touches; there is no pro-ration by day count. Validation
// walks the touched months in chronological order and rejects on the
// first month where existing spend plus the new budget would exceed the
// cap, reporting the offending month and the campaigns already committed
// to it.
package budget
