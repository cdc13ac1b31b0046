package fstree

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
)

const (
	defaultMaxFileSize = 100 * 1024 * 1024
	defaultMaxFiles    = 100_000
)

// ExcludeFunc lets a caller veto an entry by relative path and kind,
// independent of the glob pattern list.
type ExcludeFunc func(relPath string, isDir bool) bool

// Options controls one capture pass. The zero value is not directly
// usable; construct via NewOptions, which applies the defaults.
type Options struct {
	ExcludePatterns []string
	ExcludeFn       ExcludeFunc
	FollowSymlinks  bool
	MaxFileSize     int64
	MaxFiles        int
}

// Option mutates an Options in place, the functional-option idiom used
// throughout this module's configuration surfaces.
type Option func(*Options)

func NewOptions(opts ...Option) Options {
	o := Options{MaxFileSize: defaultMaxFileSize, MaxFiles: defaultMaxFiles}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithExclude(patterns ...string) Option {
	return func(o *Options) { o.ExcludePatterns = append(o.ExcludePatterns, patterns...) }
}

func WithExcludeFunc(fn ExcludeFunc) Option {
	return func(o *Options) { o.ExcludeFn = fn }
}

func WithFollowSymlinks() Option {
	return func(o *Options) { o.FollowSymlinks = true }
}

func WithMaxFileSize(bytes int64) Option {
	return func(o *Options) { o.MaxFileSize = bytes }
}

func WithMaxFiles(count int) Option {
	return func(o *Options) { o.MaxFiles = count }
}

// ShouldExclude decides whether relPath (forward-slash normalised,
// already relative to the capture root) is excluded.
func (o Options) ShouldExclude(relPath string, isDir bool) bool {
	if o.ExcludeFn != nil && o.ExcludeFn(relPath, isDir) {
		return true
	}

	rel := normalizePath(relPath)
	base := path.Base(rel)

	for _, pattern := range o.ExcludePatterns {
		if isDoubleStarDir(pattern, rel, isDir) {
			return true
		}
		if matchesGlob(pattern, rel) {
			return true
		}
		if matchesGlob(pattern, base) {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func matchesGlob(pattern, s string) bool {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return false
	}
	return g.Match(s)
}

func isDoubleStarDir(pattern, relPath string, isDir bool) bool {
	if !isDir {
		return false
	}
	prefix, ok := strings.CutSuffix(pattern, "/**")
	if !ok {
		return false
	}
	if relPath == prefix {
		return true
	}
	if strings.HasPrefix(relPath, prefix+"/") {
		return true
	}
	return matchesGlob(prefix, relPath)
}
