package core

import (
	"sync"

	"github.com/dullfig/xml-pipeline/internal/core/config"
	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
)

// scheduler is the pump's ready queue: one FIFO per thread UUID, drained by
// the worker pool under the configured policy. Breadth-first round-robins
// across threads, yielding after the fairness window; depth-first drains one
// thread before moving on.
type scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	queues map[string][]*dispatchJob
	ring   []string

	policy string
	window int
	served int
	closed bool
}

func newScheduler(policy string, window int) *scheduler {
	s := &scheduler{
		queues: map[string][]*dispatchJob{},
		policy: policy,
		window: window,
	}
	if s.window <= 0 {
		s.window = 1
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// enqueue appends the job to its thread's queue, preserving per-thread FIFO
// order. Jobs enqueued after close are dropped.
func (s *scheduler) enqueue(job *dispatchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, active := s.queues[job.threadID]; !active {
		s.ring = append(s.ring, job.threadID)
	}
	s.queues[job.threadID] = append(s.queues[job.threadID], job)
	s.cond.Signal()
}

// next blocks until a job is ready or the scheduler closes.
func (s *scheduler) next() (*dispatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return nil, errspkg.ErrSchedulerClosed
		}
		if len(s.ring) > 0 {
			break
		}
		s.cond.Wait()
	}

	if s.policy == config.SchedulingBreadthFirst && len(s.ring) > 1 && s.served >= s.window {
		s.rotate()
	}

	threadID := s.ring[0]
	queue := s.queues[threadID]
	job := queue[0]

	if len(queue) == 1 {
		delete(s.queues, threadID)
		s.ring = s.ring[1:]
		s.served = 0
	} else {
		s.queues[threadID] = queue[1:]
		s.served++
	}
	return job, nil
}

// drop discards every queued job for the given threads. Used when a subtree
// is pruned so cancelled work never reaches a worker.
func (s *scheduler) drop(threadIDs []string) {
	if len(threadIDs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[string]struct{}, len(threadIDs))
	for _, id := range threadIDs {
		doomed[id] = struct{}{}
	}
	kept := s.ring[:0]
	for _, id := range s.ring {
		if _, gone := doomed[id]; gone {
			delete(s.queues, id)
			continue
		}
		kept = append(kept, id)
	}
	s.ring = kept
	s.served = 0
}

// close wakes every blocked worker; pending jobs are discarded.
func (s *scheduler) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.queues = map[string][]*dispatchJob{}
	s.ring = nil
	s.cond.Broadcast()
}

// rotate moves the current thread to the back of the ring. Caller holds the
// lock.
func (s *scheduler) rotate() {
	head := s.ring[0]
	s.ring = append(s.ring[1:], head)
	s.served = 0
}
