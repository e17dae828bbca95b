package session

import (
	"strings"
	"testing"
	"time"

	"github.com/kindline-ai/kindline/pkg/gateway/profile"
)

func TestGreeting_RecencyBuckets(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		at := now.Add(-d)
		return &at
	}

	cases := []struct {
		name string
		last *time.Time
		want recencyBucket
	}{
		{"never called", nil, recencyFirstCall},
		{"an hour ago", ago(time.Hour), recencyRecent},
		{"five days ago", ago(5 * 24 * time.Hour), recencyRegular},
		{"a month ago", ago(30 * 24 * time.Hour), recencyLongGap},
	}
	for _, tc := range cases {
		p := &profile.Profile{LastCallAt: tc.last}
		if got := recencyOf(p, now); got != tc.want {
			t.Errorf("%s: bucket=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestGreeting_DayPart(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
	}
	if got := dayPart(at(8)); got != "morning" {
		t.Fatalf("8h=%q", got)
	}
	if got := dayPart(at(14)); got != "afternoon" {
		t.Fatalf("14h=%q", got)
	}
	if got := dayPart(at(20)); got != "evening" {
		t.Fatalf("20h=%q", got)
	}
}

func TestGreeting_RotationNeverRepeatsConsecutively(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	last := now.Add(-5 * 24 * time.Hour)
	p := &profile.Profile{Name: "Ruth", LastCallAt: &last}

	prev := ""
	for i := 0; i < 6; i++ {
		line, next := greetingFor(p, now)
		if line == prev {
			t.Fatalf("greeting repeated consecutively at call %d: %q", i, line)
		}
		prev = line
		p.GreetingIdx = next
	}
}

func TestGreeting_UsesNameWhenKnown(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	last := now.Add(-5 * 24 * time.Hour)
	p := &profile.Profile{Name: "Ruth", LastCallAt: &last}

	line, _ := greetingFor(p, now)
	if !strings.Contains(line, "Ruth") {
		t.Fatalf("greeting missing name: %q", line)
	}
}

func TestGreeting_FirstCallHasNoName(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	p := &profile.Profile{}

	line, next := greetingFor(p, now)
	if line == "" {
		t.Fatal("empty greeting")
	}
	if next != 1 {
		t.Fatalf("next idx=%d, want 1", next)
	}
	if !strings.Contains(line, "morning") {
		t.Fatalf("greeting missing day part: %q", line)
	}
}
