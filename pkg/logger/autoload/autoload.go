// Package autoload initializes the process logger from the environment when
// imported for side effects.
package autoload

import (
	configx "github.com/calldeck/calldeck/pkg/config"
	logx "github.com/calldeck/calldeck/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}
