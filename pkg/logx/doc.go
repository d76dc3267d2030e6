// Package logx is fisherbot's structured logging layer on top of zerolog.
//
// Every component gets a Logger value carrying its own fields (comp=fisher,
// loop=primary, ...). Loggers created from a Service follow Apply, so a config
// reload can change level and sinks without rebuilding components.
//
// Sinks: a console writer, an optional JSON lines file, and an optional
// Telegram alert sink that forwards warnings to the log chat with repeat
// suppression.
package logx
