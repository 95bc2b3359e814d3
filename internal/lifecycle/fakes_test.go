package lifecycle

import (
	"context"
	"sync"

	"github.com/kardianos/service"
)

// fakeProber returns scripted states in order, repeating the last one
type fakeProber struct {
	mu     sync.Mutex
	states []State
	calls  int
}

func newFakeProber(states ...State) *fakeProber {
	return &fakeProber{states: states}
}

func (p *fakeProber) Probe(ctx context.Context, name string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.states) {
		idx = len(p.states) - 1
	}
	p.calls++
	return p.states[idx]
}

func (p *fakeProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeManager answers each command with the next scripted event for that
// operation. An operation with no scripted event never answers.
type fakeManager struct {
	mu     sync.Mutex
	events map[Operation][]Event
	calls  []Operation
	onCall func(op Operation)
}

func newFakeManager() *fakeManager {
	return &fakeManager{events: make(map[Operation][]Event)}
}

func (m *fakeManager) script(op Operation, events ...Event) *fakeManager {
	m.events[op] = append(m.events[op], events...)
	return m
}

func (m *fakeManager) Calls() []Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Operation(nil), m.calls...)
}

func (m *fakeManager) issue(op Operation) <-chan Event {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	hook := m.onCall
	ch := make(chan Event, 1)
	if queue := m.events[op]; len(queue) > 0 {
		ch <- queue[0]
		m.events[op] = queue[1:]
	}
	m.mu.Unlock()

	if hook != nil {
		hook(op)
	}
	return ch
}

func (m *fakeManager) Install(ctx context.Context) <-chan Event   { return m.issue(OpInstall) }
func (m *fakeManager) Uninstall(ctx context.Context) <-chan Event { return m.issue(OpUninstall) }
func (m *fakeManager) Start(ctx context.Context) <-chan Event     { return m.issue(OpStart) }
func (m *fakeManager) Stop(ctx context.Context) <-chan Event      { return m.issue(OpStop) }

// fakePorts reports scripted listening results, repeating the last one
type fakePorts struct {
	mu      sync.Mutex
	results []bool
	err     error
	calls   int
}

func (p *fakePorts) Listening(ctx context.Context, port int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return false, p.err
	}
	if len(p.results) == 0 {
		return false, nil
	}
	idx := p.calls - 1
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	return p.results[idx], nil
}

// fakeService is a stateful stand-in for a kardianos service
type fakeService struct {
	mu        sync.Mutex
	installed bool
	running   bool

	installErr   error
	uninstallErr error
	startErr     error
	stopErr      error
	statusErr    error

	calls []string
}

func (s *fakeService) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *fakeService) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeService) Install() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("install")
	if s.installErr != nil {
		return s.installErr
	}
	s.installed = true
	return nil
}

func (s *fakeService) Uninstall() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("uninstall")
	if s.uninstallErr != nil {
		return s.uninstallErr
	}
	s.installed = false
	s.running = false
	return nil
}

func (s *fakeService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("start")
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	return nil
}

func (s *fakeService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("stop")
	if s.stopErr != nil {
		return s.stopErr
	}
	s.running = false
	return nil
}

func (s *fakeService) Status() (service.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.installed {
		return service.StatusUnknown, service.ErrNotInstalled
	}
	if s.statusErr != nil {
		return service.StatusUnknown, s.statusErr
	}
	if s.running {
		return service.StatusRunning, nil
	}
	return service.StatusStopped, nil
}
