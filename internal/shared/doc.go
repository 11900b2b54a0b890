// Package shared holds code used across several internal packages that
// belongs to none of them. Keep it small: anything with a natural home
// elsewhere should move there.
//
// Subpackages:
//
//	testutil - log capture and loan dataset fixtures for tests
package shared
