// Package watch rebuilds add-ons when their sources change.
//
// Filesystem events under the root are filtered through doublestar patterns
// and coalesced over a debounce window, so an editor saving several files
// produces one rebuild carrying every changed path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/addonpack/internal/telemetry"
)

// DefaultDebounce is the quiet period after the last event before a rebuild.
const DefaultDebounce = 250 * time.Millisecond

var (
	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("watcher already running")

	defaultIgnores = []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/*.swp",
		"**/*~",
		"**/.DS_Store",
	}
)

// Config configures a Watcher.
type Config struct {
	// Root is the directory watched recursively.
	Root string

	// Patterns select the files that trigger a rebuild, relative to Root.
	// Empty matches every file that is not ignored.
	Patterns []string

	// Ignore is merged with the default ignores.
	Ignore []string

	Debounce time.Duration

	// OnChange receives the changed paths relative to Root, sorted.
	OnChange func(ctx context.Context, changed []string) error
}

// Watcher runs OnChange after matching files under Root change.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	root     string
	ignores  []string
	debounce time.Duration
	started  atomic.Bool
}

// New validates the patterns and registers every directory under Root that
// is not ignored.
func New(cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}

	for _, pattern := range slices.Concat(cfg.Patterns, cfg.Ignore) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid watch pattern %q", pattern)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		root:     root,
		ignores:  slices.Concat(defaultIgnores, cfg.Ignore),
		debounce: cfg.Debounce,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}

	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

// Run processes events until ctx is cancelled. A rebuild still in progress
// when the debounce window closes is not interrupted; the changes are kept
// and delivered once it finishes.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.fsw.Close()

	metrics := telemetry.GetMetrics()

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			metrics.RebuildsSkippedTotal.Add(ctx, 1)
			log.Debug().Msg("Rebuild in progress, deferring changes")
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}

		metrics.RebuildsTriggeredTotal.Add(ctx, 1)
		log.Info().Strs("changed", changed).Msg("Sources changed")

		if err := w.cfg.OnChange(ctx, changed); err != nil {
			log.Error().Err(err).Msg("Rebuild failed")
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

		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}

			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if w.ignored(rel) {
				continue
			}

			// a new directory may already hold files written before it was watched
			newDir := false
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.Warn().Err(err).Str("path", rel).Msg("Failed to watch new directory")
					}
					newDir = true
				}
			}

			if !newDir && (event.Op == fsnotify.Chmod || !w.matches(rel)) {
				continue
			}

			log.Debug().Str("path", rel).Str("op", event.Op.String()).Msg("Source event")

			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn().Err(err).Msg("Watcher dropped events")
				continue
			}
			return fmt.Errorf("watcher failed: %w", err)
		}
	}
}

// addTree registers dir and every directory below it that is not ignored.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if rel != "." && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) matches(rel string) bool {
	return len(w.cfg.Patterns) == 0 || matchAny(w.cfg.Patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if doublestar.MatchUnvalidated(pattern, rel) {
			return true
		}
	}
	return false
}
