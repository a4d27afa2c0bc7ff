// Package supervisor coordinates the membriad daemon's background
// services — the webhook HTTP listener and the knowledge-base watch
// loop — giving them a shared cancellation
// context and a bounded shutdown. Grounded on the teacher's
// internal/mcp/transport_stdio.go Disconnect: goroutines are tracked in
// a sync.WaitGroup, shutdown cancels their context, and the supervisor
// waits on the group with a timeout rather than blocking forever on a
// service that won't exit.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/membria/membria-core/internal/logging"
)

// Service is one long-running background job. Run must return promptly
// once ctx is cancelled.
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor starts a fixed set of services and tears them all down
// together.
type Supervisor struct {
	services []Service

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errs    map[string]error
	running bool
}

// New builds a Supervisor over the given services. Order does not matter;
// all services start concurrently.
func New(services ...Service) *Supervisor {
	return &Supervisor{services: services, errs: make(map[string]error)}
}

// Start launches every registered service in its own goroutine under a
// context derived from ctx. It returns immediately; use Wait or Shutdown
// to block for completion.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	log := logging.Get(logging.CategorySupervisor)
	for _, svc := range s.services {
		svc := svc
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.Info("service %s starting", svc.Name)
			if err := svc.Run(runCtx); err != nil && runCtx.Err() == nil {
				log.Error("service %s exited with error: %v", svc.Name, err)
				s.mu.Lock()
				s.errs[svc.Name] = err
				s.mu.Unlock()
				return
			}
			log.Info("service %s stopped", svc.Name)
		}()
	}
}

// Wait blocks until every service has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Shutdown cancels every service's context and waits up to timeout for
// them to exit, logging any that fail to exit in time rather than
// blocking indefinitely.
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	log := logging.Get(logging.CategorySupervisor)
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("timed out after %s waiting for services to stop", timeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	var firstName string
	var firstErr error
	for name, err := range s.errs {
		if firstErr == nil {
			firstName, firstErr = name, err
		}
	}
	return fmt.Errorf("service %s failed: %w", firstName, firstErr)
}
