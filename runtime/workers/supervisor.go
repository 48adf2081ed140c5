package workers

import (
	"chatto/contract"
	"chatto/errors"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Supervisor runs workers in their own goroutine, restarts the ones that
// panic or fail, and waits for all of them on shutdown.
type Supervisor struct {
	Cancel         context.CancelFunc
	wg             *sync.WaitGroup
	log            *slog.Logger
	restartBackoff time.Duration
	workers        []contract.Worker
}

func NewSupervisor(log *slog.Logger, restartBackoff time.Duration) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log, restartBackoff: restartBackoff}
}

// Run starts every added worker under a context derived from ctx and blocks
// until all of them returned. Canceling ctx or calling Stop ends them.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision. A panic is recovered and reported as
// ErrWorkerPanic. A worker returning nil is done and never restarted.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info("Stopping worker", "name", name)
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("Worker panicked", "name", name, "panic", r)
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				s.log.Info("Worker finished", "name", name)
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartBackoff):
			}
		}
	}()
}

// Stop cancels the supervised context. Run returns once every worker exited.
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
