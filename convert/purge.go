package convert

import (
	"context"
	"errors"
	"fmt"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cssc/cache"
	"cssc/state"
)

// PurgeCache is the action of "purge" command. It removes results older than
// requested age from the cache database.
func PurgeCache(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named(cmd.Name)

	if len(env.Cfg.Cache.Path) == 0 {
		return errors.New("cache database is not configured")
	}
	age := cmd.Duration("older-than")
	if age < 0 {
		return fmt.Errorf("bad --older-than value: %s", age)
	}

	c, err := cache.Open(0, env.Cfg.Cache.Path, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	n, err := c.Purge(time.Now().Add(-age))
	if err != nil {
		return err
	}
	log.Info("Cache purged", zap.String("database", env.Cfg.Cache.Path), zap.Duration("older than", age), zap.Int("removed", n))
	return nil
}
