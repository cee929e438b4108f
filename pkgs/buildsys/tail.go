package buildsys

import "sync"

// Tail is an io.Writer that keeps only the last n bytes written to it.
type Tail struct {
	mu        sync.Mutex
	n         int
	buf       []byte
	truncated bool
}

func NewTail(n int) *Tail {
	return &Tail{n: n}
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > 2*t.n {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.n:]...)
		t.truncated = true
	}
	return len(p), nil
}

// String returns the retained output, prefixed with "..." if earlier
// output was dropped.
func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.buf
	trunc := t.truncated
	if len(b) > t.n {
		b = b[len(b)-t.n:]
		trunc = true
	}
	if trunc {
		return "...\n" + string(b)
	}
	return string(b)
}
