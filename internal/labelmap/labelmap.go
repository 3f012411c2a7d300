// Package labelmap loads the user's layout label overrides. The file is
// a JSON object mapping layout names to labels, extended with comments
// and trailing commas:
//
//	{
//		// Shown for every German variant.
//		"German": "DE",
//		"English (Dvorak)": "DV",
//	}
package labelmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
)

// settleDelay is how long to wait after a change to the file before
// reading it, since editors tend to write files in several steps.
const settleDelay = 100 * time.Millisecond

// Parse parses the contents of an override file.
func Parse(data []byte) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, fmt.Errorf("parse label map: %w", err)
	}
	for name, label := range m {
		if label == "" {
			return nil, fmt.Errorf("parse label map: empty label for %q", name)
		}
	}
	return m, nil
}

// Load reads the override file at path. A missing file is an empty map.
func Load(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Watch calls update with the new contents of the file at path every
// time it changes, until ctx is canceled. The directory is watched
// rather than the file itself so that the file can be created, replaced
// or removed. If the directory doesn't exist yet, its nearest existing
// ancestor is watched until it does. A file that fails to parse is
// logged and skipped, leaving the previous map in effect.
func Watch(ctx context.Context, path string, update func(map[string]string), log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	dir := filepath.Dir(target)

	watched := nearestDir(dir)
	err = watcher.Add(watched)
	if err != nil {
		return fmt.Errorf("watch %s: %w", watched, err)
	}
	if watched != dir {
		log.Infow("label map directory does not exist yet", "dir", dir, "watching", watched)
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	// rewatch moves the watch to the directory closest to dir that
	// exists now. Directories created before the new watch was added
	// produce no events, so it keeps going until nothing changes.
	rewatch := func() error {
		for {
			next := nearestDir(dir)
			if next == watched {
				break
			}

			watcher.Remove(watched)
			err := watcher.Add(next)
			if err != nil {
				return fmt.Errorf("watch %s: %w", next, err)
			}
			log.Debugw("moved label map watch", "from", watched, "to", next)
			watched = next
		}

		if _, err := os.Stat(target); (watched == dir) && (err == nil) {
			timer.Reset(settleDelay)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			name := filepath.Clean(ev.Name)
			if (watched != dir) || ((name == watched) && ev.Has(fsnotify.Remove|fsnotify.Rename)) {
				err := rewatch()
				if err != nil {
					return err
				}
				continue
			}

			if name != target {
				continue
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			timer.Reset(settleDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("label map watcher error", "err", err)

		case <-timer.C:
			m, err := Load(path)
			if err != nil {
				log.Warnw("failed to reload label map", "path", path, "err", err)
				continue
			}
			log.Infow("reloaded label map", "path", path, "entries", len(m))
			update(m)
		}
	}
}

// nearestDir returns dir if it is an existing directory, or else its
// closest ancestor that is.
func nearestDir(dir string) string {
	for {
		info, err := os.Stat(dir)
		if (err == nil) && info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
