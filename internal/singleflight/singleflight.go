package singleflight

import "sync"

// Group manages a set of in-flight calls so that concurrent callers with the
// same key share one execution. Minimal owner/waiter semantics for
// memoization: the owner runs the function, waiters block and receive the
// same result.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call represents an active function call.
type call struct {
	wg  sync.WaitGroup
	val interface{}
	err error
}

// New creates a new singleflight Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes and returns the results of the given function, making sure
// that only one execution is in-flight for a given key at a time. Duplicate
// callers wait for the original to complete and receive the same results.
// The key is forgotten once the call completes, so a later call re-executes.
func (g *Group) Do(key string, fn func() (interface{}, error)) (interface{}, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}

	c := &call{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()

	c.wg.Done()
	return c.val, c.err
}
