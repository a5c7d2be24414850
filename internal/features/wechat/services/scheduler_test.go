package services

import (
	"context"
	"testing"
	"time"
	"wechat-reader/internal/features/wechat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerConfig(t *testing.T) {
	config := models.DefaultSchedulerConfig()

	assert.Equal(t, time.Hour, config.UpdateInterval)
	assert.Equal(t, 1, config.MaxWorkers)
}

func TestRunCycleFetchesDueAccounts(t *testing.T) {
	f := newOrchestratorFixture(t, "slave_sid=abc")
	ctx := context.Background()

	due := createTestAccount(t, f.accounts, 1, "Due", "f1")
	createTestAccount(t, f.accounts, 2, "Other User", "f2")

	disabled := createTestAccount(t, f.accounts, 1, "Disabled", "f3")
	off := false
	_, err := f.accounts.UpdateAccount(ctx, disabled.ID, 1, &models.AccountUpdate{FetchEnabled: &off})
	require.NoError(t, err)

	recent := createTestAccount(t, f.accounts, 1, "Recent", "f4")
	now := time.Now()
	_, err = f.accounts.UpdateAccount(ctx, recent.ID, 1, &models.AccountUpdate{LastFetchTime: &now})
	require.NoError(t, err)

	f.source.candidates = []models.ArticleCandidate{candidate(1)}
	scheduler := NewSchedulerService(f.accounts, f.orchestrator, testLogger(), &models.SchedulerConfig{UpdateInterval: time.Hour, MaxWorkers: 2})

	assert.Equal(t, 2, scheduler.RunCycle(ctx))
	assert.Equal(t, 2, f.source.calls)

	stored, err := f.accounts.GetAccount(ctx, due.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ArticleCount)
	require.NotNil(t, stored.LastFetchTime)

	// Everything was just fetched
	assert.Equal(t, 0, scheduler.RunCycle(ctx))
}

func TestSchedulerStartStop(t *testing.T) {
	f := newOrchestratorFixture(t, "slave_sid=abc")
	scheduler := NewSchedulerService(f.accounts, f.orchestrator, testLogger(), &models.SchedulerConfig{UpdateInterval: time.Hour, MaxWorkers: 1})

	require.NoError(t, scheduler.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(ctx))
	require.NoError(t, scheduler.Stop(ctx), "stopping twice is safe")
}

func TestSchedulerRunsFirstCycleOnStart(t *testing.T) {
	f := newOrchestratorFixture(t, "slave_sid=abc")
	createTestAccount(t, f.accounts, 1, "Due", "f1")
	f.source.candidates = []models.ArticleCandidate{candidate(1)}

	scheduler := NewSchedulerService(f.accounts, f.orchestrator, testLogger(), &models.SchedulerConfig{UpdateInterval: time.Hour, MaxWorkers: 1})
	require.NoError(t, scheduler.Start(context.Background()))

	assert.Eventually(t, func() bool {
		f.source.mu.Lock()
		defer f.source.mu.Unlock()
		return f.source.calls == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(ctx))
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	f := newOrchestratorFixture(t, "slave_sid=abc")
	scheduler := NewSchedulerService(f.accounts, f.orchestrator, testLogger(), models.DefaultSchedulerConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, scheduler.Stop(ctx))
}
