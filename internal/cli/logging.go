package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"marketetl/internal/config"
)

// ConfigSummaryLines returns human readable lines describing the loaded config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	start, end := cfg.Window()
	return []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Tickers: %s", strings.Join(cfg.SortedSymbols(), ", ")),
		fmt.Sprintf("Date range: %s .. %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
		fmt.Sprintf("Retry backoff: %s", cfg.Backoff()),
		fmt.Sprintf("Postgres: %s", presence(strings.TrimSpace(cfg.Postgres.DSN) != "")),
		fmt.Sprintf("Redis mirror: %s", presence(cfg.RedisConfigured())),
		sourcesLine(cfg),
	}
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sourcesLine(cfg *config.Config) string {
	switch {
	case cfg.Sources.Value != nil:
		return fmt.Sprintf("Sources: %s (%s)", strings.Join(cfg.Sources.Value.Sources, " → "), cfg.Sources.File)
	default:
		return "Sources: built-in defaults"
	}
}
