// Package logging provides leveled logging for the photo library engine.
// The level is read once from the LOG_LEVEL or DEBUG environment variables.
package logging
