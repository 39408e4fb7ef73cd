package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubEngine struct {
	closed atomic.Bool
}

func (s *stubEngine) WriteFile(context.Context, string, []byte) error  { return nil }
func (s *stubEngine) Exec(context.Context, []string) error             { return nil }
func (s *stubEngine) ReadFile(context.Context, string) ([]byte, error) { return nil, nil }
func (s *stubEngine) DeleteFile(context.Context, string) error         { return nil }
func (s *stubEngine) Close() error {
	s.closed.Store(true)
	return nil
}

func TestLoaderInitializesOnce(t *testing.T) {
	var calls atomic.Int32
	eng := &stubEngine{}
	l := NewLoader(func(context.Context) (Engine, error) {
		calls.Add(1)
		return eng, nil
	})

	if l.Loaded() {
		t.Fatal("loader should be lazy")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := l.GetOrInit(context.Background())
			if err != nil || got != eng {
				t.Errorf("GetOrInit = %v, %v", got, err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("factory called %d times", calls.Load())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !eng.closed.Load() {
		t.Fatal("engine not closed")
	}
	if _, err := l.GetOrInit(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("GetOrInit after close = %v", err)
	}
}

func TestLoaderRetriesFailedInit(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	l := NewLoader(func(context.Context) (Engine, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return &stubEngine{}, nil
	})

	if _, err := l.GetOrInit(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("first init = %v", err)
	}
	if _, err := l.GetOrInit(context.Background()); err != nil {
		t.Fatalf("second init = %v", err)
	}
}

func TestLoaderSerializesDo(t *testing.T) {
	l := NewLoader(func(context.Context) (Engine, error) { return &stubEngine{}, nil })

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(context.Context, Engine) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Fatalf("peak concurrency = %d", peak.Load())
	}
}

func TestLoaderDoCancelledWhileWaiting(t *testing.T) {
	l := NewLoader(func(context.Context) (Engine, error) { return &stubEngine{}, nil })

	release := make(chan struct{})
	started := make(chan struct{})
	go l.Do(context.Background(), func(context.Context, Engine) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Do(ctx, func(context.Context, Engine) error {
		t.Error("should not run")
		return nil
	})
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do = %v", err)
	}
}
