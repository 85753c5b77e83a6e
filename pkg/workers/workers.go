// Package workers sizes background worker pools from the CPUs available to the process.
package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvThumbnailWorkers overrides the computed thumbnail worker count.
const EnvThumbnailWorkers = "PREVIEWKIT_THUMBNAIL_WORKERS"

// Count returns multiplier x GOMAXPROCS workers, at least 1 and at most limit
// (0 means no limit). GOMAXPROCS follows container CPU limits.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvThumbnailWorkers); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForThumbnails returns the thumbnail generation pool size: one worker per
// CPU, capped at limit. Each worker drives its own decoder process.
func ForThumbnails(limit int) int {
	return Count(1.0, limit)
}
