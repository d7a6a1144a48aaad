package interceptor

import (
	"io"
	"sync"
)

// chunkQueue is an unbounded FIFO of byte chunks. Writers never block;
// Read blocks until a chunk arrives or the queue is closed.
type chunkQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	chunks    [][]byte
	cur       []byte
	err       error
	closed    bool
	discarded bool
}

func newChunkQueue() *chunkQueue {
	q := &chunkQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Write copies p into the queue.
func (q *chunkQueue) Write(p []byte) (int, error) {
	q.push(p)
	return len(p), nil
}

func (q *chunkQueue) push(p []byte) {
	if len(p) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.discarded {
		return
	}
	q.chunks = append(q.chunks, append([]byte(nil), p...))
	q.cond.Signal()
}

// closeWithError ends the queue. Readers drain buffered chunks first and
// then see err, or io.EOF when err is nil.
func (q *chunkQueue) closeWithError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if err == nil {
		err = io.EOF
	}
	q.closed = true
	q.err = err
	q.cond.Broadcast()
}

// discard drops buffered data and ignores future writes. Used once the
// reader side has finished.
func (q *chunkQueue) discard() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.discarded = true
	q.chunks = nil
	q.cur = nil
	q.cond.Broadcast()
}

func (q *chunkQueue) isDiscarded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discarded
}

func (q *chunkQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.cur) == 0 {
		if len(q.chunks) > 0 {
			q.cur = q.chunks[0]
			q.chunks[0] = nil
			q.chunks = q.chunks[1:]
			continue
		}
		if q.discarded {
			return 0, io.EOF
		}
		if q.closed {
			return 0, q.err
		}
		q.cond.Wait()
	}
	n := copy(p, q.cur)
	q.cur = q.cur[n:]
	return n, nil
}

// teeBody hands the caller the original response body and copies every
// chunk read into a queue for the background drain.
type teeBody struct {
	rc io.ReadCloser
	q  *chunkQueue

	mu     sync.Mutex
	ended  bool
	closed bool
}

func (b *teeBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.q.push(p[:n])
	}
	if err != nil {
		b.mu.Lock()
		b.ended = true
		b.mu.Unlock()
		if err == io.EOF {
			b.q.closeWithError(nil)
		} else {
			b.q.closeWithError(err)
		}
	}
	return n, err
}

// Close closes the body for the caller. If the caller stopped before the
// end, the rest of the body is copied to the queue in the background and
// the underlying body is closed afterwards.
func (b *teeBody) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ended := b.ended
	b.mu.Unlock()

	if ended || b.q.isDiscarded() {
		b.q.closeWithError(nil)
		return b.rc.Close()
	}

	go func() {
		_, err := io.Copy(b.q, b.rc)
		b.q.closeWithError(err)
		_ = b.rc.Close()
	}()
	return nil
}
