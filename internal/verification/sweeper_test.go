// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/testutil"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_SweepOnce(t *testing.T) {
	reg, clock := newRegistry()
	auditor := &testutil.FakeAuditor{}
	sweeper := verification.NewSweeper(reg, time.Minute, 10*time.Minute, auditor)

	consent := record("consent", "2002", epoch)
	consent.Step = verification.StepAwaitingConsent
	consent.Claims = testutil.EligibleClaims("asmith")
	reg.Put(record("identity", "1001", epoch))
	reg.Put(consent)
	clock.Advance(5 * time.Minute)
	reg.Put(record("fresh", "3003", clock.Now()))

	assert.Equal(t, 0, sweeper.SweepOnce(context.Background()))

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 2, sweeper.SweepOnce(context.Background()))
	assert.Equal(t, 1, reg.Size())

	events := auditor.Events()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, verification.OutcomeExpired, e.Outcome)
	}
	details := []string{events[0].Detail, events[1].Detail}
	assert.ElementsMatch(t, []string{"awaiting_identity", "awaiting_consent"}, details)
}

func TestSweeper_NilAuditor(t *testing.T) {
	reg, clock := newRegistry()
	sweeper := verification.NewSweeper(reg, 0, 0, nil)
	reg.Put(record("s1", "1001", epoch))
	clock.Advance(verification.DefaultMaxAge + time.Second)

	assert.Equal(t, 1, sweeper.SweepOnce(context.Background()))
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	reg := verification.NewRegistry(verification.WithClock(func() time.Time {
		return time.Now().Add(time.Hour)
	}))
	reg.Put(record("s1", "1001", time.Now()))
	sweeper := verification.NewSweeper(reg, 10*time.Millisecond, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	assert.Eventually(t, func() bool { return reg.Size() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
