// Package logger provides a context-aware zap sugared logger shared by the
// manager components.
//
// A global logger is configured at process start; helpers read an optional
// named logger from the context so components log under their own name.
package logger
