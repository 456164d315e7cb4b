package cli

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"lawgraph/internal/lawfile"
)

// watchFiles calls onChange after the files matched by patterns change,
// coalescing bursts of events that arrive within debounce. It returns nil
// when ctx is done.
func watchFiles(ctx context.Context, patterns []string, debounce time.Duration, logger *slog.Logger, onChange func()) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, dir := range watchDirs(patterns) {
		if err := fsw.Add(dir); err != nil {
			logger.Warn("failed to watch directory", "path", dir, "error", err)
			continue
		}
		logger.Debug("watching directory", "path", dir)
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	logger.Info("watching law files", "patterns", patterns, "debounce", debounce)

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if !lawfile.IsLawFile(event.Name) {
				continue
			}
			logger.Debug("law file changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)

		case <-timer.C:
			onChange()
		}
	}
}

// watchDirs returns the directories to watch for patterns: the parent of a
// plain path, or the non-pattern prefix of a glob with every directory
// below it when the glob uses **.
func watchDirs(patterns []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	for _, p := range patterns {
		base := globBase(p)
		if base == p {
			add(filepath.Dir(p))
			continue
		}
		add(base)
		_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			add(path)
			return nil
		})
	}
	sort.Strings(dirs)
	return dirs
}

// globBase is the longest leading directory of p without glob syntax.
func globBase(p string) string {
	if !hasMeta(p) {
		return p
	}
	dir := p
	for hasMeta(dir) {
		dir = filepath.Dir(dir)
	}
	return dir
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
