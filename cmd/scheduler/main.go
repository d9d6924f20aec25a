// Command stocky-scheduler runs batch acquisition and daily PnL
// calculation on a cron schedule, grounded on aristath-sentinel's
// internal/scheduler.Scheduler (a *cron.Cron wrapper with a Job interface)
// but adapted to logrus and this engine's DataService/Calculator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/solankidhruvraj/stocky-ledger/internal/acquire"
	"github.com/solankidhruvraj/stocky-ledger/internal/config"
	"github.com/solankidhruvraj/stocky-ledger/internal/pnl"
	"github.com/solankidhruvraj/stocky-ledger/internal/providers/apiprice"
	"github.com/solankidhruvraj/stocky-ledger/internal/providers/bulk"
	"github.com/solankidhruvraj/stocky-ledger/internal/providers/fundamentals"
	"github.com/solankidhruvraj/stocky-ledger/internal/storage"
)

// job is the scheduler's unit of work, the same shape as aristath-sentinel's
// scheduler.Job interface (Name/Run), generalized to accept a context so
// jobs can be canceled on shutdown.
type job interface {
	Name() string
	Run(ctx context.Context) error
}

type acquisitionJob struct {
	store   *storage.Store
	acquire *acquire.DataService
}

func (j *acquisitionJob) Name() string { return "batch-acquisition" }
func (j *acquisitionJob) Run(ctx context.Context) error {
	symbols, err := j.store.GetAllSymbols(ctx)
	if err != nil {
		return fmt.Errorf("list symbols: %w", err)
	}
	results := j.acquire.Batch(ctx, symbols, true)
	for _, r := range results {
		if r.Err != nil {
			logrus.WithError(r.Err).WithField("symbol", r.Symbol).Warn("scheduled acquisition failed for symbol")
		}
	}
	return nil
}

type pnlJob struct {
	store *storage.Store
	calc  *pnl.Calculator
	owner string
}

func (j *pnlJob) Name() string { return "daily-pnl" }
func (j *pnlJob) Run(ctx context.Context) error {
	date := time.Now().Format("2006-01-02")
	results, err := j.calc.BatchCalculateDailyPnL(ctx, j.owner, date)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			logrus.WithError(r.Err).WithField("symbol", r.Symbol).Warn("scheduled pnl calculation failed for symbol")
		}
	}
	return nil
}

// scheduler wraps *cron.Cron the way aristath-sentinel's Scheduler does, logging
// through logrus instead of zerolog.
type scheduler struct {
	cron *cron.Cron
	log  *logrus.Logger
}

func newScheduler(log *logrus.Logger) *scheduler {
	return &scheduler{cron: cron.New(), log: log}
}

func (s *scheduler) addJob(spec string, j job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.WithField("job", j.Name()).Debug("running scheduled job")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := j.Run(ctx); err != nil {
			s.log.WithError(err).WithField("job", j.Name()).Error("scheduled job failed")
			return
		}
		s.log.WithField("job", j.Name()).Debug("scheduled job completed")
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"job": j.Name(), "schedule": spec}).Info("job registered")
	return nil
}

func (s *scheduler) start() { s.cron.Start(); s.log.Info("scheduler started") }
func (s *scheduler) stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	store, err := storage.Open(cfg.DBPath, log)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer store.Close()

	bulkProvider := bulk.New(log, cfg.MaxRetries, cfg.BaseDelay)
	apiProvider := apiprice.New(log, cfg.MaxRetries, cfg.BaseDelay)
	fundProvider := fundamentals.New(log)
	acquireSvc := acquire.New(store, bulkProvider, apiProvider, fundProvider, cfg, log)
	calc := pnl.New(store, log, cfg.MissingPriceStrategy, cfg.PriceSource)

	owner := os.Getenv("SCHEDULER_OWNER_ID")
	if owner == "" {
		owner = "default"
	}

	s := newScheduler(log)
	if err := s.addJob("0 */6 * * *", &acquisitionJob{store: store, acquire: acquireSvc}); err != nil {
		log.WithError(err).Fatal("register acquisition job")
	}
	if err := s.addJob("30 23 * * *", &pnlJob{store: store, calc: calc, owner: owner}); err != nil {
		log.WithError(err).Fatal("register pnl job")
	}
	s.start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	s.stop()
}
