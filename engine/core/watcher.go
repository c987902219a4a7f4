package core

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SettingsWatcher reloads a settings file whenever it is written or recreated
// and publishes every successfully validated copy on Updates.
type SettingsWatcher struct {
	path string

	fsnotify *fsnotify.Watcher
	updates  chan *Settings
	errors   chan error
	done     chan struct{}

	mutex    sync.Mutex
	isClosed bool
}

func NewSettingsWatcher(path string) (*SettingsWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors usually replace the file rather than write in place.
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	sw := &SettingsWatcher{
		path:     abs,
		fsnotify: fsWatch,
		updates:  make(chan *Settings, 1),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	go sw.start()
	return sw, nil
}

// Updates delivers reloaded settings. The channel is closed by Close.
func (sw *SettingsWatcher) Updates() <-chan *Settings {
	return sw.updates
}

// Errors delivers decode and watch errors. The channel is closed by Close.
func (sw *SettingsWatcher) Errors() <-chan error {
	return sw.errors
}

func (sw *SettingsWatcher) Close() error {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	if sw.isClosed {
		return errors.New("settings watcher already closed")
	}
	sw.isClosed = true
	close(sw.done)
	return nil
}

func (sw *SettingsWatcher) start() {
	defer func() {
		sw.fsnotify.Close()
		close(sw.updates)
		close(sw.errors)
	}()

	for {
		select {
		case e, ok := <-sw.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != sw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s, err := LoadSettings(sw.path)
			if err != nil {
				LogWarn("ignoring settings change: %s", err)
				sw.publishError(err)
				continue
			}
			LogInfo("settings reloaded from %s", sw.path)
			sw.publish(s)

		case err, ok := <-sw.fsnotify.Errors:
			if !ok {
				return
			}
			LogError("settings watcher: %s", err)
			sw.publishError(err)

		case <-sw.done:
			return
		}
	}
}

// publish keeps only the newest pending copy so a slow consumer never blocks the watcher.
func (sw *SettingsWatcher) publish(s *Settings) {
	for {
		select {
		case sw.updates <- s:
			return
		default:
		}
		select {
		case <-sw.updates:
		default:
		}
	}
}

func (sw *SettingsWatcher) publishError(err error) {
	select {
	case sw.errors <- err:
	default:
	}
}
