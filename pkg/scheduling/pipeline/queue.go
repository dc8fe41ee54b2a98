package pipeline

// Unit is one work item in flight. Seq is the position at which the
// generator produced it.
type Unit struct {
	Seq  int
	Item any
}

// Queue is a bounded FIFO connecting two adjacent stages.
//
// Push blocks while the queue is full and Pop blocks while it is empty.
// Close marks the end of input: Pop keeps returning buffered units and then
// reports ok == false. Poison aborts the queue: blocked and later calls
// return errors.ErrPoisonedPipeline.
type Queue interface {
	Push(u Unit) error
	Pop() (u Unit, ok bool, err error)
	Close()
	Poison()
	Len() int
	Cap() int
}

// QueueConfig describes a queue requested from a Transport.
type QueueConfig struct {
	// Name identifies the queue, usually after the producing stage.
	Name string

	// Capacity is the maximum number of buffered units. Must be positive.
	Capacity int

	// OnBlock is called each time a Push has to wait for a free slot.
	OnBlock func()
}

// Group runs stage workers and waits for all of them.
type Group interface {
	Go(fn func() error)
	Wait() error
}

// Transport supplies the queues and worker threads of a pipeline run.
// The native-thread and work-stealing backends each provide one.
type Transport interface {
	NewQueue(cfg QueueConfig) Queue
	NewGroup() Group
}
