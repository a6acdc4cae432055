// Package heart is the library a supervised child links against to satisfy
// the beatcheck contract: it reads NCOLONY_CONFIG from its own environment
// and, if a "beatcheck" extension is present, touches the status path every
// period/3 seconds -- three hits per expected window, so one missed beat is
// survivable.
package heart

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ncolony/ncolony/internal/ncspec"
)

type params struct {
	Status string  `json:"status"`
	Period float64 `json:"period"`
}

// Start reads NCOLONY_CONFIG/NCOLONY_NAME from the process environment and,
// if a "beatcheck" extension is present, launches a goroutine that touches
// the status path every period/3 seconds until ctx is cancelled or the
// returned stop func is called. If there is no NCOLONY_CONFIG, or no
// beatcheck extension, Start is a no-op and returns a nil stop func.
func Start(ctx context.Context) (stop func(), err error) {
	raw := os.Getenv(ncspec.EnvNameConfig)
	if raw == "" {
		return nil, nil
	}

	var p params
	found, err := ncspec.Extension([]byte(raw), "beatcheck", &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	statusPath := p.Status
	if info, statErr := os.Stat(statusPath); statErr == nil && info.IsDir() {
		statusPath = filepath.Join(statusPath, os.Getenv(ncspec.EnvNameName))
	}

	ctx, cancel := context.WithCancel(ctx)
	period := time.Duration(p.Period * float64(time.Second))
	interval := period / 3
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		beat(statusPath)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat(statusPath)
			}
		}
	}()

	return cancel, nil
}

// beat touches path's mtime, creating it if absent.
func beat(path string) {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		f, createErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if createErr == nil {
			f.Close()
		}
	}
}
