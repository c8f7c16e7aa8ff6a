package loop

import "sync"

// Manual is a Scheduler that only runs work when told to. Tests use it to
// control exactly where one scheduling turn ends and the next begins.
type Manual struct {
	mu    sync.Mutex
	queue []func()
}

var _ Scheduler = (*Manual)(nil)

// Post queues fn.
func (m *Manual) Post(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

// Len reports the number of queued tasks.
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// RunPending executes queued work, including work posted while draining,
// until the queue is empty. It returns the number of tasks run.
func (m *Manual) RunPending() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
		n++
	}
}
