// Package logx provides sitewatch's structured logging.
//
// It wraps zerolog behind a small Logger facade so components never depend on
// the backend directly. Sinks (console, JSON file) and the level are driven by
// configuration and can be swapped at runtime via Service.Apply without
// invalidating loggers already handed out.
package logx
