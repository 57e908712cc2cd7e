// Package contract provides contract tests that validate API response structures
// against recorded golden files. These tests verify that the client correctly
// handles files API responses without making actual API calls.
//
// Run with: go test -tags=contract ./tests/contract/...
package contract
