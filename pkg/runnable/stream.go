package runnable

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/aretw0/braid/pkg/domain"
)

type streamItem struct {
	chunk any
	err   error
}

// Stream is a finite, lazily produced sequence of chunks.
// It is read by a single consumer: call Recv until it returns io.EOF (or an
// error), and Close when done. Close may be called early to stop the producer.
type Stream struct {
	items  chan streamItem
	closed chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	finished bool
	onDone   []func(error)
	mapErr   []func(error) error
}

// StreamWriter is the producing side of a Stream.
type StreamWriter struct {
	s         *Stream
	ctx       context.Context
	closeOnce sync.Once
	// cut is set once Send refused a chunk.
	cut atomic.Bool
}

// Pipe creates a connected Stream and StreamWriter with the given buffer capacity.
//
//	s, w := runnable.Pipe(4)
//	go func() {
//		defer w.Close()
//		for _, c := range chunks {
//			if w.Send(c, nil) {
//				return // consumer went away
//			}
//		}
//	}()
func Pipe(capacity int) (*Stream, *StreamWriter) {
	return pipe(context.Background(), capacity)
}

func pipe(ctx context.Context, capacity int) (*Stream, *StreamWriter) {
	if capacity < 0 {
		capacity = 0
	}
	s := &Stream{
		items:  make(chan streamItem, capacity),
		closed: make(chan struct{}),
	}
	return s, &StreamWriter{s: s, ctx: ctx}
}

// FromSlice returns a Stream that yields chunks in order.
func FromSlice(chunks ...any) *Stream {
	s, w := Pipe(len(chunks))
	for _, c := range chunks {
		w.Send(c, nil)
	}
	w.Close()
	return s
}

// Send delivers a chunk (or an error) to the consumer.
// It reports true when the stream was closed by the consumer or the producer's
// context ended; the producer should stop in that case.
func (w *StreamWriter) Send(chunk any, err error) (closed bool) {
	select {
	case <-w.s.closed:
		w.cut.Store(true)
		return true
	case <-w.ctx.Done():
		w.cut.Store(true)
		return true
	default:
	}
	select {
	case <-w.s.closed:
		w.cut.Store(true)
		return true
	case <-w.ctx.Done():
		w.cut.Store(true)
		return true
	case w.s.items <- streamItem{chunk: chunk, err: err}:
		return false
	}
}

// fail hands a terminal error to the consumer even after the producer's
// context ended, so that Recv reports the failure instead of io.EOF.
func (w *StreamWriter) fail(err error) {
	select {
	case <-w.s.closed:
	case w.s.items <- streamItem{err: err}:
	}
}

// Close signals the end of the stream; the consumer receives io.EOF after the
// buffered chunks.
func (w *StreamWriter) Close() {
	w.closeOnce.Do(func() { close(w.s.items) })
}

// Recv returns the next chunk. It returns io.EOF once the producer finished,
// domain.ErrStreamClosed after Close, or the error the producer sent.
func (s *Stream) Recv() (any, error) {
	select {
	case <-s.closed:
		return nil, domain.ErrStreamClosed
	default:
	}

	var (
		it streamItem
		ok bool
	)
	select {
	case <-s.closed:
		return nil, domain.ErrStreamClosed
	case it, ok = <-s.items:
	}
	if !ok {
		s.finish(nil)
		return nil, io.EOF
	}
	if it.err != nil {
		err := s.translate(it.err)
		s.finish(err)
		return nil, err
	}
	return it.chunk, nil
}

// Close releases the stream. Producers blocked in Send are unblocked.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.finish(domain.ErrStreamClosed)
	})
}

// OnDone registers fn to run once the stream reaches its end: nil after
// io.EOF, the error after a failed chunk, or domain.ErrStreamClosed when the
// consumer closed it first.
func (s *Stream) OnDone(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDone = append(s.onDone, fn)
}

func (s *Stream) mapErrors(fn func(error) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapErr = append(s.mapErr, fn)
}

func (s *Stream) translate(err error) error {
	s.mu.Lock()
	fns := s.mapErr
	s.mu.Unlock()
	for _, fn := range fns {
		err = fn(err)
	}
	return err
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	fns := s.onDone
	s.mu.Unlock()

	// Callbacks run in registration order. Inner units register first, so
	// their completion work happens before their callers'.
	for _, fn := range fns {
		fn(err)
	}
}

// Collect drains s and concatenates its chunks into a single value.
// The stream is closed on return.
func Collect(s *Stream) (any, error) {
	chunks, err := Drain(s)
	if err != nil {
		return nil, err
	}
	return Concat(chunks)
}

// Drain reads every chunk of s. The stream is closed on return.
func Drain(s *Stream) ([]any, error) {
	defer s.Close()

	var chunks []any
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

// produce runs fn on its own goroutine, feeding the returned Stream.
// The producer's context is cancelled when the consumer closes the stream.
func produce(parent context.Context, capacity int, fn func(ctx context.Context, w *StreamWriter) error) *Stream {
	ctx, cancel := context.WithCancel(parent)
	s, w := pipe(ctx, capacity)
	s.OnDone(func(error) { cancel() })

	go func() {
		defer cancel()
		defer w.Close()
		defer func() {
			if r := recover(); r != nil {
				w.fail(panicError(r))
			}
		}()
		if err := fn(ctx, w); err != nil {
			w.fail(err)
		} else if err := parent.Err(); err != nil && w.cut.Load() {
			// A stream cut short by cancellation must not end in a clean io.EOF.
			// A producer that delivered everything finished, whatever ctx did later.
			w.fail(err)
		}
	}()
	return s
}
