package logging

import "log/slog"

// SetupMCPMode configures file-only logging for the stdio MCP server.
// Nothing may be written to stdout or stderr while the JSON-RPC stream is
// open, so stderr is always disabled here.
func SetupMCPMode(level string) (func(), error) {
	if level == "" {
		level = "debug"
	}
	cfg := Config{
		Level:         level,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("mcp_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))
	return cleanup, nil
}
