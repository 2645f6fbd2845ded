package schedule

import (
	"fmt"
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	r, err := Parse(`{"kind":"cron","cron_expr":"0 9 * * *"}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if r.Kind != "cron" {
		t.Errorf("expected kind cron, got %s", r.Kind)
	}
	if r.CronExpr != "0 9 * * *" {
		t.Errorf("expected cron expr '0 9 * * *', got %s", r.CronExpr)
	}
}

func TestNextCron(t *testing.T) {
	next := Next(`{"kind":"cron","cron_expr":"* * * * *"}`)
	if next == nil {
		t.Fatal("expected next run time, got nil")
	}
	if next.Before(time.Now()) {
		t.Error("expected next run in the future")
	}
}

func TestNextInterval(t *testing.T) {
	next := Next(`{"kind":"interval","interval_ms":60000}`)
	if next == nil {
		t.Fatal("expected next run time, got nil")
	}
	expected := time.Now().Add(60 * time.Second)
	diff := next.Sub(expected)
	if diff > time.Second || diff < -time.Second {
		t.Errorf("expected next run ~60s from now, got diff %v", diff)
	}
}

func TestNextOnce(t *testing.T) {
	future := time.Now().Add(time.Hour).UnixMilli()
	if next := Next(fmt.Sprintf(`{"kind":"once","at_ms":%d}`, future)); next == nil {
		t.Fatal("expected next run time, got nil")
	}

	past := time.Now().Add(-time.Hour).UnixMilli()
	if next := Next(fmt.Sprintf(`{"kind":"once","at_ms":%d}`, past)); next != nil {
		t.Error("expected nil for past once schedule")
	}
}

func TestNextInvalid(t *testing.T) {
	if next := Next(`invalid json`); next != nil {
		t.Error("expected nil for invalid schedule")
	}
	if next := Next(`{"kind":"unknown"}`); next != nil {
		t.Error("expected nil for unknown kind")
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("0 9 * * *")
	if err != nil {
		t.Fatalf("normalize plain cron: %v", err)
	}
	if got != `{"kind":"cron","cron_expr":"0 9 * * *"}` {
		t.Errorf("unexpected wrapped rule: %s", got)
	}

	passthrough := `{"kind":"interval","interval_ms":5000}`
	got, err = Normalize(passthrough)
	if err != nil {
		t.Fatalf("normalize json rule: %v", err)
	}
	if got != passthrough {
		t.Errorf("expected passthrough, got %s", got)
	}

	for _, bad := range []string{
		"not a cron",
		`{"kind":"cron","cron_expr":"bad"}`,
		`{"kind":"interval","interval_ms":0}`,
		`{"kind":"once","at_ms":-1}`,
		`{"kind":"weird"}`,
	} {
		if _, err := Normalize(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(`{"kind":"cron","cron_expr":"0 * * * *"}`); got != "cron 0 * * * *" {
		t.Errorf("unexpected description: %s", got)
	}
	if got := Describe(`{"kind":"interval","interval_ms":60000}`); got != "every 1m0s" {
		t.Errorf("unexpected description: %s", got)
	}
}
