package singleflight

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	g := New()
	if g == nil {
		t.Fatal("New() returned nil")
	}
	if g.m == nil {
		t.Error("New() did not initialize map")
	}
}

func TestDo(t *testing.T) {
	g := New()

	val, err := g.Do("key1", func() (interface{}, error) {
		return "hello", nil
	})

	if err != nil {
		t.Errorf("Do() returned error: %v", err)
	}
	if val != "hello" {
		t.Errorf("Do() returned %v, want hello", val)
	}
}

func TestDoError(t *testing.T) {
	g := New()
	expectedErr := errors.New("test error")

	val, err := g.Do("key1", func() (interface{}, error) {
		return nil, expectedErr
	})

	if err != expectedErr {
		t.Errorf("Do() returned error %v, want %v", err, expectedErr)
	}
	if val != nil {
		t.Errorf("Do() returned %v, want nil", val)
	}
}

func TestDoCoalescesConcurrentCalls(t *testing.T) {
	g := New()

	var calls int64
	release := make(chan struct{})

	const waiters = 10
	results := make([]interface{}, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = g.Do("key", func() (interface{}, error) {
				atomic.AddInt64(&calls, 1)
				<-release
				return "shared", nil
			})
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Errorf("expected 1 execution for concurrent callers, got %d", n)
	}
	for i, r := range results {
		if r != "shared" {
			t.Errorf("waiter %d got %v, want shared", i, r)
		}
	}
}

func TestDoForgetsKeyAfterCompletion(t *testing.T) {
	g := New()

	var calls int64
	fn := func() (interface{}, error) {
		return atomic.AddInt64(&calls, 1), nil
	}

	first, _ := g.Do("key", fn)
	second, _ := g.Do("key", fn)

	if first == second {
		t.Error("sequential calls must re-execute once the key is forgotten")
	}
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Errorf("expected 2 executions, got %d", n)
	}
}

func TestDoDistinctKeysRunIndependently(t *testing.T) {
	g := New()

	var calls int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Do(key, func() (interface{}, error) {
				atomic.AddInt64(&calls, 1)
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt64(&calls); n != 5 {
		t.Errorf("expected 5 executions for 5 keys, got %d", n)
	}
}
