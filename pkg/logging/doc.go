// Package logging builds the process slog logger and the HTTP access log
// middleware.
package logging
