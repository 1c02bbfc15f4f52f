// Package id provides unique identifier generation for jobs.
package id

import "github.com/google/uuid"

// Prefix marks every job identifier.
const Prefix = "job-"

// Generate creates a new unique job ID.
// Format: job-<uuid v4>
// Example: job-9f1c2d3e-8a7b-4c6d-9e0f-1a2b3c4d5e6f
func Generate() string {
	return Prefix + uuid.NewString()
}

// Valid reports whether s has the shape produced by Generate.
func Valid(s string) bool {
	if len(s) <= len(Prefix) || s[:len(Prefix)] != Prefix {
		return false
	}
	_, err := uuid.Parse(s[len(Prefix):])
	return err == nil
}
