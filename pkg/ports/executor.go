package ports

// Executor runs tasks sequentially in submission order.
// Execute must not block on the task itself.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func())

func (f ExecutorFunc) Execute(task func()) { f(task) }
