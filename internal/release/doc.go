// Package release resolves the latest upstream release from the GitHub
// Releases API and selects the asset matching the host architecture.
//
// Requests are single-attempt; any failure wraps ErrResolution so callers
// can treat release metadata problems uniformly.
package release
