package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron"
	"go.uber.org/zap"
)

const watchDebounce = 500 * time.Millisecond

// Watch reloads the snapshot whenever the dataset file is written, created
// or renamed into place. The parent directory is watched so editors that
// replace the file are seen. It blocks until ctx is cancelled.
func (s *Service) Watch(ctx context.Context) error {
	path, err := filepath.Abs(s.opts.Dataset.Path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	s.logger.Info("watching dataset", zap.String("path", path))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	fire := func() {
		if err := s.Reload(ctx, TriggerWatch); err != nil {
			s.logger.Warn("reload after file change failed, keeping previous snapshot", zap.Error(err))
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// editors emit several events per save
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, fire)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Schedule retrains on a cron spec such as "@every 6h". The caller stops
// the returned scheduler.
func (s *Service) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	err := c.AddFunc(spec, func() {
		s.logger.Info("scheduled retrain", zap.String("spec", spec))
		if err := s.Reload(context.Background(), TriggerSchedule); err != nil {
			s.logger.Warn("scheduled retrain failed, keeping previous snapshot", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("retrain schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
