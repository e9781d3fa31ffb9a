package logger

import (
	"github.com/sirupsen/logrus"
)

// Predicate decides whether a log entry should be emitted. Entries carry the
// component field set by NewDefault / WithField.
type Predicate func(component string, level logrus.Level, message string) bool

// Filter suppresses diagnostic output from noisy components. Deny predicates
// are evaluated first; an entry surviving all deny predicates must then match
// at least one allow predicate, unless none are configured.
type Filter struct {
	allow []Predicate
	deny  []Predicate
}

// NewFilter returns an empty filter that admits everything.
func NewFilter() *Filter {
	return &Filter{}
}

// Allow adds an allow predicate.
func (f *Filter) Allow(p Predicate) *Filter {
	f.allow = append(f.allow, p)
	return f
}

// Deny adds a deny predicate.
func (f *Filter) Deny(p Predicate) *Filter {
	f.deny = append(f.deny, p)
	return f
}

// DenyComponent suppresses all output from the named component.
func (f *Filter) DenyComponent(name string) *Filter {
	return f.Deny(func(component string, _ logrus.Level, _ string) bool {
		return component == name
	})
}

// Admits reports whether the entry passes the filter.
func (f *Filter) Admits(component string, level logrus.Level, message string) bool {
	// Warnings and errors always pass; the filter exists to quiet chatter,
	// not to hide failures.
	if level <= logrus.WarnLevel {
		return true
	}
	for _, p := range f.deny {
		if p(component, level, message) {
			return false
		}
	}
	if len(f.allow) == 0 {
		return true
	}
	for _, p := range f.allow {
		if p(component, level, message) {
			return true
		}
	}
	return false
}

// filteringFormatter wraps another formatter and drops filtered entries by
// formatting them to nothing.
type filteringFormatter struct {
	filter *Filter
	inner  logrus.Formatter
}

func (ff *filteringFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	component, _ := entry.Data["component"].(string)
	if ff.filter != nil && !ff.filter.Admits(component, entry.Level, entry.Message) {
		return nil, nil
	}
	return ff.inner.Format(entry)
}
