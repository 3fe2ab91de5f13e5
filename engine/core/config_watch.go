package core

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads a config file whenever it changes on disk and hands
// the new value to onChange. Invalid files are logged and ignored.
type ConfigWatcher struct {
	path     string
	onChange func(Config)

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}

	mu       sync.Mutex
	isClosed bool
}

func WatchConfig(path string, onChange func(Config)) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, editors usually replace the file instead of writing it.
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		path:     abs,
		onChange: onChange,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go cw.start()
	return cw, nil
}

func (cw *ConfigWatcher) start() {
	defer close(cw.stopped)
	for {
		select {
		case e, ok := <-cw.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != cw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := LoadConfig(cw.path)
			if err != nil {
				LogWarn("config reload skipped: %s", err)
				continue
			}
			LogInfo("config reloaded from %s", cw.path)
			cw.onChange(cfg)

		case err, ok := <-cw.fsnotify.Errors:
			if !ok {
				return
			}
			LogError("%s", err)

		case <-cw.done:
			return
		}
	}
}

func (cw *ConfigWatcher) Close() error {
	cw.mu.Lock()
	if cw.isClosed {
		cw.mu.Unlock()
		return errors.New("config watcher already closed")
	}
	cw.isClosed = true
	cw.mu.Unlock()

	close(cw.done)
	err := cw.fsnotify.Close()
	<-cw.stopped
	return err
}
