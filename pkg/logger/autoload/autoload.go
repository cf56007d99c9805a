package autoload

import (
	configx "github.com/itinera-labs/itinera/pkg/config"
	logx "github.com/itinera-labs/itinera/pkg/logger"
)

// Importing this package for side effects configures the global logger
// from LOG_* environment variables before main runs.
func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
