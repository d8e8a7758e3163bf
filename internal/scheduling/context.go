package scheduling

import (
	"fmt"
	"log/slog"
	"sync"
)

// Context is an execution context: one goroutine draining an unbounded FIFO
// of tasks. Workers sharing a context run one task at a time.
type Context struct {
	id     int
	name   string
	custom bool
	logger *slog.Logger
	late   func(task func())

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	running bool
	stopped bool
	done    chan struct{}
}

// newContext creates a context. late runs tasks that reach the context after
// it stopped.
func newContext(id int, name string, custom bool, logger *slog.Logger, late func(task func())) *Context {
	c := &Context{
		id:     id,
		name:   name,
		custom: custom,
		logger: logger.With("context", name),
		late:   late,
		done:   make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// ID is PrivateThreadID for private contexts, the group id for custom groups,
// -component for component contexts and UndefinedThreadID for the default one.
func (c *Context) ID() int        { return c.id }
func (c *Context) Name() string   { return c.name }
func (c *Context) IsCustom() bool { return c.custom }

func (c *Context) String() string { return fmt.Sprintf("%s (%d)", c.name, c.id) }

// Execute enqueues a task. Tasks reaching a stopped context are handed to
// the late runner so that no notification is lost during reassignment.
func (c *Context) Execute(task func()) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.late(func() { c.execute(task) })
		return
	}
	c.tasks = append(c.tasks, task)
	c.mu.Unlock()
	c.cond.Signal()
}

// Pending returns the number of queued tasks, counting the one running.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return len(c.tasks) + 1
	}
	return len(c.tasks)
}

// Stop lets the context drain its queue and exit. It does not wait.
func (c *Context) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Done is closed once the loop has exited.
func (c *Context) Done() <-chan struct{} { return c.done }

func (c *Context) run() error {
	defer close(c.done)
	c.logger.Debug("context started")
	for {
		c.mu.Lock()
		for len(c.tasks) == 0 && !c.stopped {
			c.cond.Wait()
		}
		if len(c.tasks) == 0 {
			c.mu.Unlock()
			c.logger.Debug("context stopped")
			return nil
		}
		task := c.tasks[0]
		c.tasks[0] = nil
		c.tasks = c.tasks[1:]
		c.running = true
		c.mu.Unlock()

		c.execute(task)

		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}
}

func (c *Context) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("task panicked", "err", fmt.Errorf("panic: %v", r))
		}
	}()
	task()
}
