// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"slices"
	"strings"
)

// ParseScope splits a space-delimited scope parameter, dropping empty
// entries and duplicates.
func ParseScope(raw string) []string {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// CanonicalScopes returns a sorted copy of scopes.
func CanonicalScopes(scopes []string) []string {
	out := slices.Clone(scopes)
	slices.Sort(out)
	return out
}

// JoinScopes renders scopes in canonical order as a scope parameter.
func JoinScopes(scopes []string) string {
	return strings.Join(CanonicalScopes(scopes), " ")
}

// unknownScope returns the first scope not in known.
func unknownScope(requested, known []string) (string, bool) {
	for _, s := range requested {
		if !slices.Contains(known, s) {
			return s, true
		}
	}
	return "", false
}
