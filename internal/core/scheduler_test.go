package core

import (
	"errors"
	"testing"

	"github.com/dullfig/xml-pipeline/internal/core/config"
	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
)

func job(threadID string) *dispatchJob {
	return &dispatchJob{threadID: threadID}
}

func drain(t *testing.T, s *scheduler, n int) []string {
	t.Helper()
	order := make([]string, 0, n)
	for i := 0; i < n; i++ {
		j, err := s.next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		order = append(order, j.threadID)
	}
	return order
}

func TestSchedulerBreadthFirstRotatesAtWindow(t *testing.T) {
	s := newScheduler(config.SchedulingBreadthFirst, 2)
	for i := 0; i < 4; i++ {
		s.enqueue(job("t1"))
		s.enqueue(job("t2"))
	}

	order := drain(t, s, 8)
	want := []string{"t1", "t1", "t2", "t2", "t1", "t1", "t2", "t2"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", order, want)
		}
	}
}

func TestSchedulerBreadthFirstSingleThreadIgnoresWindow(t *testing.T) {
	s := newScheduler(config.SchedulingBreadthFirst, 1)
	for i := 0; i < 3; i++ {
		s.enqueue(job("only"))
	}
	order := drain(t, s, 3)
	for _, id := range order {
		if id != "only" {
			t.Fatalf("unexpected thread %s", id)
		}
	}
}

func TestSchedulerDepthFirstDrainsOneThread(t *testing.T) {
	s := newScheduler(config.SchedulingDepthFirst, 2)
	for i := 0; i < 3; i++ {
		s.enqueue(job("t1"))
	}
	for i := 0; i < 2; i++ {
		s.enqueue(job("t2"))
	}

	order := drain(t, s, 5)
	want := []string{"t1", "t1", "t1", "t2", "t2"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", order, want)
		}
	}
}

func TestSchedulerPreservesPerThreadFIFO(t *testing.T) {
	s := newScheduler(config.SchedulingBreadthFirst, 1)
	first := job("t1")
	second := job("t1")
	s.enqueue(first)
	s.enqueue(second)

	got, err := s.next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != first {
		t.Fatal("per-thread FIFO order violated")
	}
}

func TestSchedulerDropDiscardsThreads(t *testing.T) {
	s := newScheduler(config.SchedulingBreadthFirst, 4)
	s.enqueue(job("keep"))
	s.enqueue(job("doomed"))
	s.enqueue(job("doomed"))

	s.drop([]string{"doomed"})

	got, err := s.next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.threadID != "keep" {
		t.Fatalf("unexpected thread %s", got.threadID)
	}
}

func TestSchedulerCloseWakesWaiters(t *testing.T) {
	s := newScheduler(config.SchedulingBreadthFirst, 4)
	done := make(chan error, 1)
	go func() {
		_, err := s.next()
		done <- err
	}()

	s.close()
	if err := <-done; !errors.Is(err, errspkg.ErrSchedulerClosed) {
		t.Fatalf("expected scheduler closed, got %v", err)
	}

	s.enqueue(job("late"))
	if _, err := s.next(); !errors.Is(err, errspkg.ErrSchedulerClosed) {
		t.Fatalf("expected closed scheduler to reject work, got %v", err)
	}
}
