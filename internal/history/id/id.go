// Package id provides unique identifier generation for stored records.
package id

import "github.com/google/uuid"

// Generate creates a new unique record ID.
// Format: RFC 4122 version 4 UUID, e.g. 6f1c3a52-2b7e-4c55-9d0e-7b0d3f3a9c11
func Generate() string {
	return uuid.NewString()
}

// Valid reports whether s has the shape of an ID produced by Generate.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
