package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var logLevel = new(slog.LevelVar)

// configureLogging installs a text handler on w as the default slog logger.
// level is one of debug, info, warn or error, in any case.
func configureLogging(level string, w io.Writer) error {
	if level == "" {
		level = "info"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logLevel.Set(lvl)

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}
