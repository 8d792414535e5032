package config

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goid returns the id of the calling goroutine, read from the header of
// its stack trace ("goroutine 42 [running]:").
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// SetQueue collects mutations from goroutines that do not own the Store.
// The owner applies them with Store.Apply.
type SetQueue struct {
	mu      sync.Mutex
	pending []queuedSet
}

type queuedSet struct {
	path  string
	value any
}

// Set records a mutation. It is safe for concurrent use.
func (q *SetQueue) Set(path string, value any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, queuedSet{path: path, value: value})
}

func (q *SetQueue) drain() []queuedSet {
	q.mu.Lock()
	defer q.mu.Unlock()
	p := q.pending
	q.pending = nil
	return p
}

func (q *SetQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
