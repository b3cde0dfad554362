// Package autoload initializes the global logger from the LOG_* environment
// on import.
package autoload

import (
	configx "github.com/fernandofuc/tistis-platform-sub010/pkg/config"
	logx "github.com/fernandofuc/tistis-platform-sub010/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
