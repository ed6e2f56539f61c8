// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reflink

import (
	"strings"
	"unicode"
)

// ToSnakeCase converts a CamelCase or mixedCase identifier to snake_case.
//
// Acronym runs stay together: "HTTPServer" becomes "http_server",
// "userID" becomes "user_id".
func ToSnakeCase(name string) string {
	if name == "" {
		return ""
	}

	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			// Boundary before an upper rune that follows a lower rune,
			// or that starts the tail of an acronym run.
			if i > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || nextLower {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Pluralize returns the conventional table-name plural of an entity name.
//
// Handles the regular English cases: "user" becomes "users", "category"
// becomes "categories", "address" becomes "addresses". Irregular nouns are
// out of scope; explicit table metadata overrides the convention.
func Pluralize(name string) string {
	if name == "" {
		return ""
	}

	switch {
	case strings.HasSuffix(name, "s"),
		strings.HasSuffix(name, "x"),
		strings.HasSuffix(name, "z"),
		strings.HasSuffix(name, "ch"),
		strings.HasSuffix(name, "sh"):
		return name + "es"
	case strings.HasSuffix(name, "y") && len(name) > 1 && !isVowel(rune(name[len(name)-2])):
		return name[:len(name)-1] + "ies"
	default:
		return name + "s"
	}
}

// isVowel reports whether r is an ASCII vowel.
func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// splitBinding splits a binding expression like "user.email" into its
// entity and field parts. A bare field name yields an empty entity.
// Wrapping syntax is stripped first: "{{ user.email }}", "{user.email}",
// and "${user.email}" all reduce to "user.email".
func splitBinding(expr string) (entity, field string) {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "$")
	for strings.HasPrefix(expr, "{") && strings.HasSuffix(expr, "}") {
		expr = strings.TrimPrefix(expr, "{")
		expr = strings.TrimSuffix(expr, "}")
	}
	expr = strings.TrimSpace(expr)

	if i := strings.LastIndex(expr, "."); i >= 0 {
		return strings.TrimSpace(expr[:i]), strings.TrimSpace(expr[i+1:])
	}
	return "", expr
}

// normalizeRoute canonicalizes a route path for comparison: lowercased,
// single leading slash, no trailing slash.
func normalizeRoute(route string) string {
	route = strings.ToLower(strings.TrimSpace(route))
	route = strings.TrimSuffix(route, "/")
	if route == "" {
		return "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}
