// Package proxyconf models the generated sing-box configuration and
// persists it as JSON.
//
// The credential pair (listen port, password) is generated exactly once:
// EnsureExists creates the file only when absent, so installs and updates
// never rotate credentials. All mutation happens through the typed model,
// never through text patching.
package proxyconf
