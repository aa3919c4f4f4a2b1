// Package ir provides the value and key types shared by every qsync package.
//
// This package contains type definitions and encoding only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Query keys are tuples of primitives (string, int64, bool); no floats
//   - Key identity is the SHA-256 of the key's RFC 8785 canonical JSON
//   - Mutation inputs recorded in the journal use the same canonical form
//   - All JSON tags use snake_case
package ir
