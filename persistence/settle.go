package persistence

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const settleOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// waitForQuiet blocks until dir and its subdirectories have seen no write, create, remove or
// rename for quiet, or until maxWait has passed. Without a usable watcher it sleeps quiet.
func waitForQuiet(ctx context.Context, dir string, quiet, maxWait time.Duration) error {
	if quiet <= 0 {
		return ctx.Err()
	}
	if maxWait < quiet {
		maxWait = quiet
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("settle watcher unavailable, falling back to fixed delay")
		return sleepCtx(ctx, quiet)
	}
	defer watcher.Close()

	if err := watchRecursive(watcher, dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("settle watch failed, falling back to fixed delay")
		return sleepCtx(ctx, quiet)
	}

	quietTimer := time.NewTimer(quiet)
	defer quietTimer.Stop()
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	events := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return sleepCtx(ctx, quiet)
			}
			if event.Op&settleOps == 0 {
				continue
			}
			events++
			if event.Op&fsnotify.Create != 0 {
				_ = watcher.Add(event.Name)
			}
			if !quietTimer.Stop() {
				select {
				case <-quietTimer.C:
				default:
				}
			}
			quietTimer.Reset(quiet)

		case err, ok := <-watcher.Errors:
			if ok {
				log.Debug().Err(err).Str("dir", dir).Msg("settle watcher error")
			}

		case <-quietTimer.C:
			log.Debug().Str("dir", dir).Int("events", events).Msg("credential dir settled")
			return nil

		case <-deadline.C:
			log.Warn().Str("dir", dir).Int("events", events).Dur("maxWait", maxWait).Msg("credential dir still changing, uploading anyway")
			return nil
		}
	}
}

func watchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
