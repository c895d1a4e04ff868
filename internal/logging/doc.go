// Package logging configures structured logging for amanrag.
//
// Without --debug, records go to stderr at the configured level. With
// --debug, JSON records are also written to a size-rotated file under
// ~/.amanrag/logs/ that `amanrag logs` can tail. The MCP server logs to the
// file only, since stdout carries the JSON-RPC stream.
package logging
