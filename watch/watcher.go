// Package watch notices file changes inside session worktrees so the app
// can refresh diff views without polling. Events are debounced per session;
// the .git directory is never watched.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/KKould/snowtree/log"
)

var logger = log.GetLogger("WATCH")

// Watcher observes registered worktrees and reports, per session, that
// something changed. Callers decide what "changed" means (usually a diff
// recomputation).
type Watcher struct {
	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	deb      *debouncer
	roots    map[string]string // sessionID -> worktree path
	onChange func(sessionID string)
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher delivering debounced per-session change
// notifications to onChange.
func NewWatcher(onChange func(sessionID string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		roots:    make(map[string]string),
		onChange: onChange,
		stopChan: make(chan struct{}),
	}
	w.deb = newDebouncer(DefaultDebounceDelay, onChange)

	w.wg.Add(1)
	go w.eventLoop()
	return w, nil
}

// AddSession starts watching a session's worktree recursively
func (w *Watcher) AddSession(sessionID, worktreePath string) error {
	w.mu.Lock()
	w.roots[sessionID] = worktreePath
	w.mu.Unlock()

	err := filepath.Walk(worktreePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if info.Name() == ".git" {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			logger.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info().Str("session", sessionID).Str("worktree", worktreePath).Msg("watching worktree")
	return nil
}

// RemoveSession stops watching a session's worktree
func (w *Watcher) RemoveSession(sessionID string) {
	w.mu.Lock()
	root, ok := w.roots[sessionID]
	delete(w.roots, sessionID)
	w.mu.Unlock()
	if !ok {
		return
	}

	for _, watched := range w.fsw.WatchList() {
		if watched == root || strings.HasPrefix(watched, root+string(filepath.Separator)) {
			if err := w.fsw.Remove(watched); err != nil {
				logger.Debug().Err(err).Str("path", watched).Msg("failed to unwatch directory")
			}
		}
	}
}

// Stop shuts the watcher down; pending debounced notifications are dropped
func (w *Watcher) Stop() {
	w.deb.Stop()
	close(w.stopChan)
	if err := w.fsw.Close(); err != nil {
		logger.Debug().Err(err).Msg("fsnotify close failed")
	}
	w.wg.Wait()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("filesystem watch error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if strings.Contains(event.Name, string(filepath.Separator)+".git"+string(filepath.Separator)) ||
		strings.HasSuffix(event.Name, string(filepath.Separator)+".git") {
		return
	}

	sessionID := w.sessionFor(event.Name)
	if sessionID == "" {
		return
	}

	// New directories need their own watch for recursion to hold
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && info.Name() != ".git" {
			if err := w.fsw.Add(event.Name); err != nil {
				logger.Debug().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
			}
		}
	}

	w.deb.Queue(sessionID)
}

// sessionFor maps an event path back to the owning session
func (w *Watcher) sessionFor(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for sessionID, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return sessionID
		}
	}
	return ""
}
