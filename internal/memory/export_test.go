// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

var (
	ParseTriplets   = parseTriplets
	StripCodeFences = stripCodeFences
	TruncateRunes   = truncateRunes
	MergeResults    = mergeResults
	RoundWeight     = roundWeight
	ClampLimit      = clampLimit
)
