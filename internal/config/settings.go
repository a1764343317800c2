package config

import (
	"slices"
	"sync/atomic"
)

// Settings exposes the hot-reloadable render settings to request handlers.
type Settings struct {
	sanitize atomic.Bool
	tags     atomic.Pointer[[]string]
}

// NewSettings seeds a provider from cfg.
func NewSettings(cfg *Config) *Settings {
	s := &Settings{}
	empty := []string{}
	s.tags.Store(&empty)
	if cfg != nil {
		s.Apply(cfg)
	}
	return s
}

// SanitizeAnswer reports whether answers are sanitized before parsing.
func (s *Settings) SanitizeAnswer() bool { return s.sanitize.Load() }

// AllowedTags returns a copy of the sanitizer allow-list; empty means the
// built-in list.
func (s *Settings) AllowedTags() []string {
	return slices.Clone(*s.tags.Load())
}

// Apply copies the reloadable fields of cfg and reports whether the tag
// allow-list changed.
func (s *Settings) Apply(cfg *Config) (tagsChanged bool) {
	s.sanitize.Store(cfg.Render.SanitizeAnswer)
	next := slices.Clone(cfg.Render.AllowedTags)
	if next == nil {
		next = []string{}
	}
	prev := s.tags.Swap(&next)
	return !slices.Equal(*prev, next)
}
