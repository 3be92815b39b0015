// Package rules owns the hot-reloadable rule configuration consumed by
// the pipeline. A reload swaps the whole RuleSet atomically; a request in
// flight keeps the snapshot it started with.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/chatwerk/replyengine/internal/pipeline"
	"github.com/chatwerk/replyengine/pkg/logging"
)

// Store serves the current RuleSet from a JSON file.
type Store struct {
	path    string
	current atomic.Pointer[pipeline.RuleSet]
	logger  *logging.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore loads the initial rule set from path.
func NewStore(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{path: path, logger: logger, done: make(chan struct{})}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active rule set. The returned value must be treated
// as read-only; the pipeline never mutates it.
func (s *Store) Current() pipeline.RuleSet {
	return *s.current.Load()
}

// Reload re-reads the file and swaps the rule set in one step. On failure
// the previous rule set stays active.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("rules: read %s: %w", s.path, err)
	}

	var rs pipeline.RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return fmt.Errorf("rules: decode %s: %w", s.path, err)
	}

	s.current.Store(&rs)
	s.logger.Info("rule set reloaded",
		"forbidden_words", len(rs.ForbiddenWords),
		"situation_rules", len(rs.SituationRules),
	)
	return nil
}

// Watch reloads the rule set whenever the file changes on disk. Errors
// during a watched reload keep the previous rules and are only logged.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules: create watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("rules: watch %s: %w", s.path, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case <-s.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					if err := s.Reload(); err != nil {
						s.logger.Warn("rules hot reload failed, keeping previous rules", "error", err.Error())
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("rules watcher error", "error", err.Error())
			}
		}
	}()
	return nil
}

// Close stops the watcher, if any.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
