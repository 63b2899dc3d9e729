package model_test

import (
	"testing"
	"time"

	"github.com/agentdir/agentdir/internal/registry/model"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Cool Agent", "cool-agent"},
		{"version suffix", "Cool Agent v2", "cool-agent-v2"},
		{"punctuation run collapses", "My  --  Agent!!", "my-agent"},
		{"leading and trailing junk trimmed", "  ***Agent***  ", "agent"},
		{"already a slug", "weather-bot", "weather-bot"},
		{"mixed case", "WeatherBot", "weatherbot"},
		{"digits kept", "agent 007", "agent-007"},
		{"only punctuation", "!!!", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := model.Slugify(tc.in); got != tc.want {
				t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSlugify_deterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		if got := model.Slugify("Cool Agent v2"); got != "cool-agent-v2" {
			t.Fatalf("iteration %d: got %q", i, got)
		}
	}
}

func TestLivenessState_Online(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		lastSeen *time.Time
		want     bool
	}{
		{"never heartbeated", nil, false},
		{"just now", ptr(now), true},
		{"exactly at window edge", ptr(now.Add(-model.OnlineWindow)), true},
		{"one second past window", ptr(now.Add(-model.OnlineWindow - time.Second)), false},
		{"hours stale", ptr(now.Add(-3 * time.Hour)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := model.LivenessState{Status: model.StatusOnline, LastSeenAt: tc.lastSeen}
			if got := s.Online(now); got != tc.want {
				t.Errorf("Online() = %v, want %v", got, tc.want)
			}
		})
	}
}

// A busy agent that heartbeats recently is still online; the self-reported
// status and the derived reachability are independent dimensions.
func TestLivenessState_Online_independentOfStatus(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Minute)

	for _, status := range []model.Status{model.StatusOnline, model.StatusOffline, model.StatusBusy} {
		s := model.LivenessState{Status: status, LastSeenAt: &recent}
		if !s.Online(now) {
			t.Errorf("status %q with recent heartbeat should derive online", status)
		}
	}
}

func TestNewLivenessState(t *testing.T) {
	s := model.NewLivenessState()
	if s.Status != model.StatusOffline {
		t.Errorf("initial status = %q, want offline", s.Status)
	}
	if s.LastSeenAt != nil || s.Load != nil || s.Message != "" {
		t.Errorf("initial state should be empty apart from status: %+v", s)
	}
	if s.Online(time.Now()) {
		t.Error("freshly registered agent must not derive online")
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []model.Status{"online", "offline", "busy"} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []model.Status{"", "ONLINE", "away", "idle"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func ptr(t time.Time) *time.Time { return &t }
