package logger

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestFilterDenyComponent(t *testing.T) {
	f := NewFilter().DenyComponent("noisy")

	if f.Admits("noisy", logrus.InfoLevel, "anything") {
		t.Fatal("denied component should be filtered at info level")
	}
	if !f.Admits("quiet", logrus.InfoLevel, "anything") {
		t.Fatal("other components should pass")
	}
}

func TestFilterWarningsAlwaysPass(t *testing.T) {
	f := NewFilter().DenyComponent("noisy")

	if !f.Admits("noisy", logrus.WarnLevel, "degraded") {
		t.Fatal("warnings must never be suppressed")
	}
	if !f.Admits("noisy", logrus.ErrorLevel, "broken") {
		t.Fatal("errors must never be suppressed")
	}
}

func TestFilterDenyPredicateByMessage(t *testing.T) {
	f := NewFilter().Deny(func(component string, level logrus.Level, message string) bool {
		return strings.Contains(message, "heartbeat")
	})

	if f.Admits("watcher", logrus.InfoLevel, "heartbeat tick") {
		t.Fatal("denied message should be filtered")
	}
	if !f.Admits("watcher", logrus.InfoLevel, "refresh complete") {
		t.Fatal("unrelated messages should pass")
	}
}

func TestFilterAllowListActsAsWhitelist(t *testing.T) {
	f := NewFilter().Allow(func(component string, level logrus.Level, message string) bool {
		return component == "pipeline"
	})

	if !f.Admits("pipeline", logrus.InfoLevel, "submitting") {
		t.Fatal("allowed component should pass")
	}
	if f.Admits("watcher", logrus.InfoLevel, "refresh complete") {
		t.Fatal("with an allow list, unlisted components are filtered")
	}
}
