// Package logging builds the process logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

// New returns a console or json logger at level. filter is an optional
// zapfilter rule set such as "*:monitor,transmit warn+:*".
func New(level, format, filter string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	var opts []zap.Option
	if filter != "" {
		opt, err := filterOption(filter)
		if err != nil {
			return nil, fmt.Errorf("log filter: %w", err)
		}
		opts = append(opts, opt)
	}
	return cfg.Build(opts...)
}

func filterOption(rules string) (zap.Option, error) {
	fn, err := zapfilter.ParseRules(rules)
	if err != nil {
		return nil, err
	}
	return zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapfilter.NewFilteringCore(c, fn)
	}), nil
}
