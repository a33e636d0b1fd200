// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package google

// BuildConfig exposes buildConfig for white-box testing.
var BuildConfig = buildConfig
