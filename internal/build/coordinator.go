package build

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ryanbastic/go-scorecard/internal/shard"
)

// Role tells a caller of Do whether it started the job or attached to one
// already in flight.
type Role int

const (
	Leader Role = iota // started the job
	Joined             // attached to an existing job
)

func (r Role) String() string {
	if r == Joined {
		return "joined"
	}
	return "leader"
}

// Func is the work deduplicated by a Coordinator. The context it receives is
// detached from any single caller: it is not cancelled when callers give up.
type Func[T any] func(ctx context.Context) (T, error)

type job[T any] struct {
	done    chan struct{}
	val     T
	err     error
	waiters int
}

type stripe[T any] struct {
	mu   sync.Mutex
	jobs map[string]*job[T]
}

// Coordinator runs at most one Func per key at a time. Callers arriving while
// a job for their key is in flight wait for that job's result instead of
// starting another. The registry is process-local and lost on restart.
type Coordinator[T any] struct {
	stripes []stripe[T]
	timeout time.Duration
}

// NewCoordinator creates a Coordinator whose registry is split into n lock
// stripes. timeout bounds each job; zero means no deadline.
func NewCoordinator[T any](n int, timeout time.Duration) *Coordinator[T] {
	if n <= 0 {
		n = 1
	}
	c := &Coordinator[T]{stripes: make([]stripe[T], n), timeout: timeout}
	for i := range c.stripes {
		c.stripes[i].jobs = make(map[string]*job[T])
	}
	return c
}

func (c *Coordinator[T]) stripeFor(key string) *stripe[T] {
	return &c.stripes[shard.ForKey(key, len(c.stripes))]
}

// Do runs fn for key unless a job for key is already in flight, in which
// case it waits for that job. Every waiter of a job receives the same value
// and error.
//
// If ctx is cancelled while waiting, Do returns ctx.Err() but the job keeps
// running for the remaining waiters.
func (c *Coordinator[T]) Do(ctx context.Context, key string, fn Func[T]) (T, Role, error) {
	s := c.stripeFor(key)

	s.mu.Lock()
	j, ok := s.jobs[key]
	role := Joined
	if ok {
		j.waiters++
	} else {
		j = &job[T]{done: make(chan struct{}), waiters: 1}
		s.jobs[key] = j
		role = Leader
	}
	s.mu.Unlock()

	if role == Leader {
		go c.run(context.WithoutCancel(ctx), s, key, j, fn)
	}

	select {
	case <-j.done:
		return j.val, role, j.err
	case <-ctx.Done():
		var zero T
		return zero, role, ctx.Err()
	}
}

func (c *Coordinator[T]) run(ctx context.Context, s *stripe[T], key string, j *job[T], fn Func[T]) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			j.err = fmt.Errorf("build %s panicked: %v", key, r)
		}
		s.mu.Lock()
		delete(s.jobs, key)
		s.mu.Unlock()
		close(j.done)
	}()

	j.val, j.err = fn(ctx)
}

// Waiters returns how many callers are attached to the in-flight job for key,
// or zero if there is none.
func (c *Coordinator[T]) Waiters(key string) int {
	s := c.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[key]; ok {
		return j.waiters
	}
	return 0
}

// InFlight returns the number of jobs currently running.
func (c *Coordinator[T]) InFlight() int {
	n := 0
	for i := range c.stripes {
		s := &c.stripes[i]
		s.mu.Lock()
		n += len(s.jobs)
		s.mu.Unlock()
	}
	return n
}
