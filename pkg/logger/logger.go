package logx

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level        string `split_words:"true" default:"info"`
	PrettyFormat bool   `split_words:"true" default:"false"`
	WithCaller   bool   `split_words:"true" default:"true"`
}

var DefaultConfig = &Config{
	Level:      "info",
	WithCaller: true,
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

func parseLevel(raw string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Init configures the global zerolog logger. Called once from the autoload
// package; later calls replace the logger wholesale.
func Init(opts ...Config) {
	conf := safe(opts...)

	var out zerolog.Logger
	if conf.PrettyFormat {
		out = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		out = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	out = out.Level(parseLevel(conf.Level))
	if conf.WithCaller {
		out = out.With().Caller().Stack().Logger()
	}
	log.Logger = out
}
