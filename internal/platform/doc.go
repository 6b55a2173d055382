// Package platform resolves host facts once at startup: the normalized CPU
// architecture, the operating system identity from /etc/os-release and the
// native package manager derived from it.
//
// Components receive the resolved Info value instead of performing ambient
// lookups of their own.
package platform
