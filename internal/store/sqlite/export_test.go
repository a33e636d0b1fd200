// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package sqlite

// SearchTerms exposes the lexical query tokenizer for tests.
var SearchTerms = searchTerms
