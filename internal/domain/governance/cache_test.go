package governance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSource struct {
	calls atomic.Int32
	rules []*Rule
	err   error
	gate  chan struct{}
}

func (s *countingSource) ListActiveRules(_ context.Context, module string) ([]*Rule, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	var out []*Rule
	for _, r := range s.rules {
		if r.AppliesTo(module) {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestRuleCache_CachesPerModule(t *testing.T) {
	src := &countingSource{rules: []*Rule{
		newRule(RuleTypeAudit, `{}`),
		newRule(RuleTypeExplainability, `{}`, "triage"),
	}}
	c := NewRuleCache(src, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rules, err := c.Rules(ctx, "assessment")
		if err != nil {
			t.Fatalf("Rules: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule for assessment, got %d", len(rules))
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected 1 load, got %d", got)
	}

	rules, _ := c.Rules(ctx, "triage")
	if len(rules) != 2 {
		t.Errorf("expected 2 rules for triage, got %d", len(rules))
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("expected 2 loads, got %d", got)
	}
}

func TestRuleCache_InvalidateReloads(t *testing.T) {
	src := &countingSource{}
	c := NewRuleCache(src, 0)
	ctx := context.Background()

	if rules, _ := c.Rules(ctx, "assessment"); len(rules) != 0 {
		t.Fatalf("expected no rules, got %d", len(rules))
	}
	src.rules = []*Rule{newRule(RuleTypeAudit, `{}`)}
	c.Invalidate()
	rules, err := c.Rules(ctx, "assessment")
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("expected new rule after invalidate, got %d", len(rules))
	}
}

func TestRuleCache_TTLExpiry(t *testing.T) {
	src := &countingSource{}
	c := NewRuleCache(src, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Rules(ctx, "assessment")
	now = now.Add(30 * time.Second)
	c.Rules(ctx, "assessment")
	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected cached result within ttl, got %d loads", got)
	}
	now = now.Add(time.Minute)
	c.Rules(ctx, "assessment")
	if got := src.calls.Load(); got != 2 {
		t.Errorf("expected reload after ttl, got %d loads", got)
	}
}

func TestRuleCache_ErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	c := NewRuleCache(src, 0)
	if _, err := c.Rules(context.Background(), "assessment"); err == nil {
		t.Fatal("expected error")
	}
	src.err = nil
	if _, err := c.Rules(context.Background(), "assessment"); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("expected 2 loads, got %d", got)
	}
}

func TestRuleCache_ConcurrentMissesShareLoad(t *testing.T) {
	src := &countingSource{gate: make(chan struct{})}
	c := NewRuleCache(src, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Rules(context.Background(), "assessment"); err != nil {
				t.Errorf("Rules: %v", err)
			}
		}()
	}
	// Let the goroutines pile up on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected a single shared load, got %d", got)
	}
}
