package transfer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/config"
)

type fakeRole struct {
	err     error
	stopped atomic.Int32
	stop    chan struct{}
}

func newFakeRole(err error) *fakeRole {
	return &fakeRole{err: err, stop: make(chan struct{})}
}

func (f *fakeRole) Configure(*config.Config) error { return nil }

func (f *fakeRole) Run(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	select {
	case <-ctx.Done():
	case <-f.stop:
	}
	return nil
}

func (f *fakeRole) Stop() {
	if f.stopped.Add(1) == 1 {
		close(f.stop)
	}
}

func TestRunAll(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Run("cancel", func(t *testing.T) {
		a, b := newFakeRole(nil), newFakeRole(nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- RunAll(ctx, a, b) }()
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("RunAll() = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("RunAll() did not return")
		}
		if a.stopped.Load() == 0 || b.stopped.Load() == 0 {
			t.Error("roles were not stopped")
		}
	})
	t.Run("failure", func(t *testing.T) {
		want := errors.New("bind failed")
		a, b := newFakeRole(nil), newFakeRole(want)
		if err := RunAll(context.Background(), a, b); !errors.Is(err, want) {
			t.Errorf("RunAll() = %v, want %v", err, want)
		}
		if a.stopped.Load() == 0 {
			t.Error("surviving role was not stopped")
		}
	})
}
