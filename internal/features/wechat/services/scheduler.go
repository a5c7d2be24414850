package services

import (
	"context"
	"fmt"
	"sync"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
)

// AccountLister lists accounts across users
type AccountLister interface {
	ListAccounts(ctx context.Context, userID int, enabledOnly bool) ([]models.Account, error)
}

// SchedulerService handles periodic account fetches
type SchedulerService struct {
	accounts     AccountLister
	orchestrator *FetchOrchestrator
	logger       *core.Logger
	config       *models.SchedulerConfig
	cron         *cron.Cron
	cancel       context.CancelFunc
	stopOnce     sync.Once
	stopped      context.Context
	wg           sync.WaitGroup
	now          func() time.Time
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(
	accounts AccountLister,
	orchestrator *FetchOrchestrator,
	logger *core.Logger,
	config *models.SchedulerConfig,
) *SchedulerService {
	return &SchedulerService{
		accounts:     accounts,
		orchestrator: orchestrator,
		logger:       logger,
		config:       config,
		cron:         cron.New(cron.WithLogger(cronLogger{logger})),
		now:          time.Now,
	}
}

// Start schedules a fetch cycle every UpdateInterval and runs the first one immediately
func (s *SchedulerService) Start(ctx context.Context) error {
	s.logger.Info("Starting account fetch scheduler", "interval", s.config.UpdateInterval, "workers", s.config.MaxWorkers)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Cycles never overlap, including the initial one
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger})).Then(cron.FuncJob(func() {
		s.RunCycle(ctx)
	}))
	s.cron.Schedule(cron.Every(s.config.UpdateInterval), job)
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job.Run()
	}()

	return nil
}

// Stop cancels running fetches and waits for in-flight cycles to return
func (s *SchedulerService) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping account fetch scheduler")
		if s.cancel != nil {
			s.cancel()
		}
		s.stopped = s.cron.Stop()
	})

	done := make(chan struct{})
	go func() {
		<-s.stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCycle fetches every enabled account whose frequency has elapsed and returns how many were attempted
func (s *SchedulerService) RunCycle(ctx context.Context) int {
	accounts, err := s.accounts.ListAccounts(ctx, 0, true)
	if err != nil {
		s.logger.Error("Failed to list accounts for update", "error", err)
		return 0
	}

	now := s.now()
	due := lo.Filter(accounts, func(a models.Account, _ int) bool { return a.DueForFetch(now) })
	if len(due) == 0 {
		s.logger.Debug("No accounts due for fetch", "enabled", len(accounts))
		return 0
	}

	s.logger.Info("Starting fetch cycle", "due", len(due), "enabled", len(accounts))

	workers := s.config.MaxWorkers
	if workers <= 0 {
		workers = 1
	}

	accountChan := make(chan *models.Account, len(due))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go s.accountWorker(ctx, accountChan, &wg)
	}

	for i := range due {
		accountChan <- &due[i]
	}
	close(accountChan)

	wg.Wait()

	s.logger.Info("Fetch cycle completed", "accounts", len(due))
	return len(due)
}

func (s *SchedulerService) accountWorker(ctx context.Context, accountChan <-chan *models.Account, wg *sync.WaitGroup) {
	defer wg.Done()

	for account := range accountChan {
		if ctx.Err() != nil {
			return
		}
		if err := s.fetchAccount(ctx, account); err != nil {
			s.logger.Error("Failed to fetch account", "account_id", account.ID, "name", account.Name, "error", err)
		}
	}
}

func (s *SchedulerService) fetchAccount(ctx context.Context, account *models.Account) error {
	result, err := s.orchestrator.FetchArticles(ctx, account, account.Name, models.FetchOptions{})
	if err != nil {
		return fmt.Errorf("fetch account %d: %w", account.ID, err)
	}
	s.logger.Debug("Account fetched", "account_id", account.ID, "new", result.Success, "skipped", result.Skipped, "failed", result.Failed)
	return nil
}

// cronLogger routes cron's own messages to the feature logger
type cronLogger struct {
	logger *core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
