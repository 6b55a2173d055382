// Package deploy downloads release archives, extracts the managed
// executable and places it on disk.
//
// Archives are staged in a temporary directory that is removed on every
// exit path. Binary replacement goes through go-update so a failed write
// rolls back to the previous executable. The package also discovers
// additional copies of the executable under configured search roots so an
// update can replace every managed instance.
package deploy
