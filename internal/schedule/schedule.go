// Package schedule parses and evaluates recurrence rules for scheduled
// tasks. A rule is either a plain cron expression or a JSON object
// selecting cron, fixed interval, or one-shot execution.
package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

type Rule struct {
	Kind       string `json:"kind"`                  // "cron", "interval", "once"
	CronExpr   string `json:"cron_expr,omitempty"`   // if kind=cron
	IntervalMs int64  `json:"interval_ms,omitempty"` // if kind=interval
	AtMs       int64  `json:"at_ms,omitempty"`       // unix ms, if kind=once
}

func Parse(raw string) (*Rule, error) {
	var r Rule
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	return &r, nil
}

// Next returns the next run time for the rule, or nil when the rule is
// invalid or will never fire again (a one-shot in the past).
func Next(raw string) *time.Time {
	r, err := Parse(raw)
	if err != nil {
		return nil
	}

	now := time.Now()
	var next time.Time

	switch r.Kind {
	case "cron":
		t, err := gronx.NextTick(r.CronExpr, false)
		if err != nil {
			return nil
		}
		next = t
	case "interval":
		next = now.Add(time.Duration(r.IntervalMs) * time.Millisecond)
	case "once":
		t := time.UnixMilli(r.AtMs)
		if !t.After(now) {
			return nil
		}
		next = t
	default:
		return nil
	}

	return &next
}

// Normalize accepts either a plain cron expression or rule JSON and
// returns validated rule JSON. Plain cron strings are wrapped.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	var r Rule
	if err := json.Unmarshal([]byte(raw), &r); err == nil && r.Kind != "" {
		switch r.Kind {
		case "cron":
			if !gronx.New().IsValid(r.CronExpr) {
				return "", fmt.Errorf("invalid cron expression: %s", r.CronExpr)
			}
		case "interval":
			if r.IntervalMs <= 0 {
				return "", fmt.Errorf("interval_ms must be positive")
			}
		case "once":
			if r.AtMs <= 0 {
				return "", fmt.Errorf("at_ms must be positive")
			}
		default:
			return "", fmt.Errorf("unknown schedule kind: %s", r.Kind)
		}
		return raw, nil
	}

	if !gronx.New().IsValid(raw) {
		return "", fmt.Errorf("invalid schedule: not valid JSON or cron expression: %s", raw)
	}

	data, err := json.Marshal(Rule{Kind: "cron", CronExpr: raw})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Describe renders a rule for listings.
func Describe(raw string) string {
	r, err := Parse(raw)
	if err != nil {
		return raw
	}

	switch r.Kind {
	case "cron":
		return "cron " + r.CronExpr
	case "interval":
		return "every " + (time.Duration(r.IntervalMs) * time.Millisecond).String()
	case "once":
		return "once at " + time.UnixMilli(r.AtMs).Format("Jan 2 15:04")
	default:
		return raw
	}
}
