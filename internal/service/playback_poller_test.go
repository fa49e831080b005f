package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/callpanel-api/internal/models"
)

type triggerStub struct {
	mu    sync.Mutex
	units []string
	err   error
}

func (s *triggerStub) Trigger(_ context.Context, unitID string) (*models.TriggerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = append(s.units, unitID)
	if s.err != nil {
		return nil, s.err
	}
	return &models.TriggerResult{UnitID: unitID, Status: models.TriggerNothingDue}, nil
}

func (s *triggerStub) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.units...)
}

type unitListerStub struct {
	units []string
	err   error
}

func (s *unitListerStub) ListActiveUnits(context.Context) ([]string, error) {
	return s.units, s.err
}

func TestPlaybackPollerRunOnceDiscoversUnits(t *testing.T) {
	trigger := &triggerStub{}
	poller := NewPlaybackPoller(trigger, &unitListerStub{units: []string{"unit-a", "unit-b"}}, nil, time.Minute, nil)

	poller.RunOnce(context.Background())
	assert.Equal(t, []string{"unit-a", "unit-b"}, trigger.seen())
}

func TestPlaybackPollerStaticUnitsWin(t *testing.T) {
	trigger := &triggerStub{}
	lister := &unitListerStub{err: errors.New("should not be called")}
	poller := NewPlaybackPoller(trigger, lister, []string{"unit-z"}, time.Minute, nil)

	poller.RunOnce(context.Background())
	assert.Equal(t, []string{"unit-z"}, trigger.seen())
}

func TestPlaybackPollerContinuesAfterFailure(t *testing.T) {
	trigger := &triggerStub{err: errors.New("db down")}
	poller := NewPlaybackPoller(trigger, nil, []string{"unit-a", "unit-b"}, time.Minute, nil)

	poller.RunOnce(context.Background())
	assert.Len(t, trigger.seen(), 2)
}

func TestPlaybackPollerKick(t *testing.T) {
	trigger := &triggerStub{}
	poller := NewPlaybackPoller(trigger, nil, nil, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)

	require.True(t, poller.Kick("unit-a"))
	require.Eventually(t, func() bool {
		return len(trigger.seen()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "unit-a", trigger.seen()[0])
}
