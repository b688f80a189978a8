package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// QueueCapacity is the fixed command queue depth.
const QueueCapacity = 16

// CommandQueue is a bounded multi-producer, single-consumer FIFO with
// drop-oldest overflow. Producers never block: enqueuing into a full queue
// evicts the oldest entry and inserts the new one ("newest wins"), reported
// as an overflow but not an error.
type CommandQueue struct {
	mu    sync.Mutex
	buf   [QueueCapacity]Command
	head  int
	count int
	log   zerolog.Logger
}

func NewCommandQueue(log zerolog.Logger) *CommandQueue {
	return &CommandQueue{log: log.With().Str("comp", "cmdqueue").Logger()}
}

// Enqueue inserts cmd, callable from any goroutine. Returns false when the
// queue was full and the oldest command was discarded to make room.
func (q *CommandQueue) Enqueue(cmd Command) bool {
	q.mu.Lock()
	overflow := q.count == QueueCapacity
	if overflow {
		q.head = (q.head + 1) % QueueCapacity
		q.count--
	}
	q.buf[(q.head+q.count)%QueueCapacity] = cmd
	q.count++
	q.mu.Unlock()

	if overflow {
		q.log.Warn().Str("cmd", cmd.Type.String()).Msg("command queue overflow, dropped oldest")
	}
	return !overflow
}

// Dequeue pops the oldest command. Single consumer only (the render loop).
func (q *CommandQueue) Dequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return Command{}, false
	}
	cmd := q.buf[q.head]
	q.head = (q.head + 1) % QueueCapacity
	q.count--
	return cmd, true
}

// Pending is advisory; it may be stale by the time the caller acts on it.
func (q *CommandQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Clear discards all pending commands.
func (q *CommandQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head = 0
	q.count = 0
}
