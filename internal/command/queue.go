package command

// Queue is a fixed-capacity FIFO ring of commands. It decouples command
// arrival on the transport from synchronous execution in the control loop.
// Enqueue on a full queue fails closed: the command is dropped and the
// caller notified, never overwritten.
type Queue struct {
	buf  []Command
	head int
	tail int
	size int
}

// NewQueue creates a Queue with the given capacity (minimum 1).
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{buf: make([]Command, capacity)}
}

// Enqueue appends a command, returning false when the queue is full.
func (q *Queue) Enqueue(c Command) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[q.tail] = c
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	return true
}

// Dequeue removes and returns the oldest command.
func (q *Queue) Dequeue() (Command, bool) {
	if q.size == 0 {
		return Command{}, false
	}
	c := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return c, true
}

// Len returns the number of queued commands.
func (q *Queue) Len() int { return q.size }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return len(q.buf) }

// Clear drops all queued commands.
func (q *Queue) Clear() {
	q.head = 0
	q.tail = 0
	q.size = 0
}
