package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDirectories creates the data, output and logs directories if they
// don't exist
func (p PathsConfig) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.OutputDir,
		p.LogsDir,
	}

	logger := slog.Default()
	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// RunOutputPath returns the file an exported run is written to, e.g.
// output/hormuz-strike_3f2a.xlsx
func (p PathsConfig) RunOutputPath(label, runID, ext string) string {
	name := sanitizeName(label)
	if runID != "" {
		short := runID
		if len(short) > 8 {
			short = short[:8]
		}
		name += "_" + short
	}
	return filepath.Join(p.OutputDir, name+"."+strings.TrimPrefix(ext, "."))
}

// LogPathResolution logs the resolved paths
func (p PathsConfig) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("output", p.OutputDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("files",
			slog.String("baskets", p.BasketsFile),
			slog.Bool("baskets_exists", p.BasketsFile != "" && FileExists(p.BasketsFile)),
		))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "run"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, s)
}
