package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"sentinel/logger"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// BaselineSummary counts the outcome of an initial sweep.
type BaselineSummary struct {
	Files      int64 `json:"files"`
	Suspicious int64 `json:"suspicious"`
	Failed     int64 `json:"failed"`
}

// Baseline scans every regular file already under root. Files written while
// the watcher was down would otherwise never be evaluated.
func (s *Scanner) Baseline(ctx context.Context, root string) (BaselineSummary, error) {
	var summary BaselineSummary
	walk := stackWalker{}

	logger.Info("Counting files for initial scan...")
	total, err := s.countBaselineFiles(ctx, walk, root)
	if err != nil {
		return summary, err
	}
	logger.Infof("Files to scan: %d", total)

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Initial scan"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetVisibility(progressVisible()),
		progressbar.OptionFullWidth(),
	)

	var limiter *rate.Limiter
	if s.ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.ratePerSec), s.ratePerSec)
	}

	var files, suspicious, failed atomic.Int64
	paths := make(chan string, s.concurrency)
	var wg sync.WaitGroup
	for range s.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				v, err := s.ScanFile(ctx, path)
				switch {
				case errors.Is(err, ErrExcluded):
				case errors.As(err, new(*ReadError)):
					failed.Add(1)
				default:
					files.Add(1)
					if v.Suspicious() {
						suspicious.Add(1)
					}
					if err != nil {
						failed.Add(1)
					}
				}
				_ = bar.Add(1)
			}
		}()
	}

	walkErr := walk.Walk(ctx, root, s.baselineVisitor(root, func(path string) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case paths <- path:
			return nil
		}
	}))
	close(paths)
	wg.Wait()
	_ = bar.Finish()

	summary = BaselineSummary{Files: files.Load(), Suspicious: suspicious.Load(), Failed: failed.Load()}
	if walkErr != nil {
		return summary, walkErr
	}
	logger.Infof("Initial scan finished: %d files, %d suspicious, %d failed", summary.Files, summary.Suspicious, summary.Failed)
	return summary, nil
}

func (s *Scanner) countBaselineFiles(ctx context.Context, walk walker, root string) (int, error) {
	total := 0
	err := walk.Walk(ctx, root, s.baselineVisitor(root, func(string) error {
		total++
		return nil
	}))
	return total, err
}

// baselineVisitor applies the filter and hands regular files to visit.
func (s *Scanner) baselineVisitor(root string, visit func(path string) error) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && d == nil {
				return err
			}
			logger.Warnf("Failed to access %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != root && s.filter.SkipDir(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.filter.Excluded(path) {
			return nil
		}
		return visit(path)
	}
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("SENTINEL_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
