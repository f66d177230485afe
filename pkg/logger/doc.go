// Package logger builds the application's structured logger: text output
// during development, JSON in production, with the environment attached to
// every record.
package logger
