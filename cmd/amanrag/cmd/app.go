package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/config"
)

// loadConfig resolves --config or the working-directory lookup, then applies
// --data-dir.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dataDir) != "" {
		cfg.Storage.DataDir = dataDir
	}
	return cfg, nil
}

// withApp loads config and the knowledge base, runs fn, and closes the app.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			slog.Warn("app_close_failed", slog.String("error", cerr.Error()))
		}
	}()
	return fn(a)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:n]))
}
