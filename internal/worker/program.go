package worker

import (
	"context"
	"sync"

	"github.com/kardianos/service"
	"go.uber.org/zap"
)

// Program adapts a Daemon to kardianos/service. Under the Windows SCM the
// service manager drives Start and Stop; elsewhere service.Run maps SIGINT
// and SIGTERM to Stop.
type Program struct {
	daemon *Daemon
	logger *zap.Logger
	exit   func(code int)

	stopOnce sync.Once
	stopped  chan struct{}
	watching sync.WaitGroup
}

// NewProgram wraps daemon. exit terminates the process after a fault.
func NewProgram(daemon *Daemon, logger *zap.Logger, exit func(code int)) *Program {
	return &Program{
		daemon:  daemon,
		logger:  logger,
		exit:    exit,
		stopped: make(chan struct{}),
	}
}

// Start must not block
func (p *Program) Start(s service.Service) error {
	if err := p.daemon.Start(context.Background()); err != nil {
		p.logger.Error("Worker failed to start", zap.Error(err))
		return err
	}

	p.watching.Add(1)
	go p.watch()
	return nil
}

// Stop shuts the daemon down with exit code 0
func (p *Program) Stop(s service.Service) error {
	p.stopOnce.Do(func() { close(p.stopped) })
	err := p.daemon.Shutdown(0)
	p.watching.Wait()
	return err
}

// watch turns the first fault into a shutdown with exit code 1
func (p *Program) watch() {
	defer p.watching.Done()

	select {
	case err := <-p.daemon.Faults():
		p.logger.Error("Worker fault, shutting down", zap.Error(err))
		_ = p.daemon.Shutdown(1)
		p.logger.Info("Exiting process", zap.Int("exit_code", 1))
		_ = p.logger.Sync()
		p.exit(1)
	case <-p.stopped:
	}
}
