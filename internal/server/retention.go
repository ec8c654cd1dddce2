package server

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// Retention defaults for generated audio files.
const (
	DefaultAudioMaxAge   = 24 * time.Hour
	DefaultAudioMaxFiles = 200

	sweepInterval = 10 * time.Minute
)

// Janitor prunes the audio directory: files past MaxAge are removed, and the
// oldest files go when the count exceeds MaxFiles. Only files this server
// generates are touched.
type Janitor struct {
	dir      string
	maxAge   time.Duration
	maxFiles int
	log      *weblog.Log
}

// NewJanitor creates a janitor for dir. Zero values fall back to defaults.
func NewJanitor(dir string, maxAge time.Duration, maxFiles int, log *weblog.Log) *Janitor {
	if maxAge <= 0 {
		maxAge = DefaultAudioMaxAge
	}

	if maxFiles <= 0 {
		maxFiles = DefaultAudioMaxFiles
	}

	return &Janitor{
		dir:      dir,
		maxAge:   maxAge,
		maxFiles: maxFiles,
		log:      log,
	}
}

// Run sweeps periodically until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep performs one pruning pass and returns the number of files removed.
func (j *Janitor) Sweep() int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Warn("Audio sweep failed to read %s: %v", j.dir, err)
		}

		return 0
	}

	type audioFile struct {
		name    string
		modTime time.Time
	}

	var files []audioFile

	now := time.Now()
	removed := 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() ||
			!strings.HasPrefix(name, audioFilePrefix) ||
			!strings.HasSuffix(name, audioFileSuffix) {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}

		if now.Sub(info.ModTime()) > j.maxAge {
			removed += j.remove(name)

			continue
		}

		files = append(files, audioFile{name: name, modTime: info.ModTime()})
	}

	if len(files) > j.maxFiles {
		sort.Slice(files, func(a, b int) bool {
			return files[a].modTime.Before(files[b].modTime)
		})

		for _, file := range files[:len(files)-j.maxFiles] {
			removed += j.remove(file.name)
		}
	}

	if removed > 0 {
		j.log.Info("Audio sweep removed %d file(s) from %s", removed, j.dir)
	}

	return removed
}

func (j *Janitor) remove(name string) int {
	err := os.Remove(filepath.Join(j.dir, name))
	if err != nil {
		j.log.Warn("Audio sweep failed to remove %s: %v", name, err)

		return 0
	}

	return 1
}
