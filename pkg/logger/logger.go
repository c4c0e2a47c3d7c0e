// Package logger configures the global zerolog logger: a JSON train.log
// under the run's save path, plus an optional human-readable console
// writer.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up the global logger. The file writer is skipped when savePath
// is empty.
func Init(savePath string, printOnScreen bool, level string) error {
	setLogLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	var writers []io.Writer
	if savePath != "" {
		f, err := os.OpenFile(filepath.Join(savePath, "train.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open train.log: %w", err)
		}
		writers = append(writers, f)
	}
	if printOnScreen || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "2006-01-02 15:04:05",
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("%-6s", i))
			},
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return nil
}

func setLogLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "", "INFO":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "DISABLED":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		log.Warn().Str("level", level).Msg("unknown log level, defaulting to INFO")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
