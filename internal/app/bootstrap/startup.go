// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Sync: appCfg.SyncTimeout,
		Flow: appCfg.FlowTimeout,
	})
	cur := timeouts.Current()
	logger.Info("timeouts configured",
		zap.Duration("step", cur.Step),
		zap.Duration("sync", cur.Sync),
		zap.Duration("flow", cur.Flow),
	)
	return nil
}
