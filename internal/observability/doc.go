// Package observability builds the process-wide zap logger.
//
// LOG_FORMAT selects JSON (the default) or the console encoder with colour
// levels. The level comes from LOG_LEVEL.
package observability
