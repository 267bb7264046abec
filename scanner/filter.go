package scanner

import (
	"path/filepath"

	"sentinel/config"
	"sentinel/utils"
)

// Filter excludes the scanner's own artifacts and user patterns from
// scanning. Without it every quarantine copy and every log append would
// trigger another scan.
type Filter struct {
	quarantineDir string
	logName       string
	manifestName  string
	matcher       *utils.ExcludeMatcher
}

func NewFilter(cfg *config.Config) *Filter {
	f := &Filter{matcher: utils.NewExcludeMatcher(cfg.ExcludePatterns)}
	if cfg.QuarantineDir != "" {
		f.quarantineDir = utils.ResolvePath(cfg.QuarantineDir)
	}
	if cfg.LogFile != "" {
		f.logName = filepath.Base(cfg.LogFile)
	}
	if cfg.ManifestFile != "" {
		f.manifestName = filepath.Base(cfg.ManifestFile)
	}
	return f
}

// Excluded reports whether path must not be scanned.
func (f *Filter) Excluded(path string) bool {
	if f == nil {
		return false
	}
	if f.inQuarantine(path) {
		return true
	}
	base := filepath.Base(path)
	if base == f.logName || (f.manifestName != "" && base == f.manifestName) {
		return true
	}
	return f.matcher.Match(path)
}

// SkipDir reports whether a directory should not be descended into or
// watched.
func (f *Filter) SkipDir(path string) bool {
	if f == nil {
		return false
	}
	return f.inQuarantine(path) || f.matcher.Match(path)
}

func (f *Filter) inQuarantine(path string) bool {
	return f.quarantineDir != "" && utils.IsPathWithin(path, []string{f.quarantineDir})
}
