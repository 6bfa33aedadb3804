package par

import (
	"fmt"
	"sync"
)

// State is the lifecycle of a cache entry.
type State int

const (
	Absent  State = iota // no entry for the key
	Pending              // the computation is running
	Ready                // the computation returned a value
	Failed               // the computation returned an error
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type future[V any] struct {
	done  chan struct{}
	state State
	val   V
	err   error
}

// Cache memoizes the result of a computation per key. The first caller for a
// key runs the computation; concurrent and later callers wait for it and
// observe the same value or the same error. Failures are memoized too.
//
// The zero value is an empty Cache ready to use.
type Cache[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*future[V]
}

// Do returns the memoized result for key, calling f to compute it if no
// other caller has done so.
func (c *Cache[K, V]) Do(key K, f func() (V, error)) (V, error) {
	c.mu.Lock()
	if c.m == nil {
		c.m = make(map[K]*future[V])
	}
	if fut, ok := c.m[key]; ok {
		c.mu.Unlock()
		<-fut.done
		return fut.val, fut.err
	}
	fut := &future[V]{done: make(chan struct{}), state: Pending}
	c.m[key] = fut
	c.mu.Unlock()

	c.run(fut, f)
	return fut.val, fut.err
}

func (c *Cache[K, V]) run(fut *future[V], f func() (V, error)) {
	settled := false
	defer func() {
		if settled {
			return
		}
		// f panicked: fail the future so waiters are released, then re-panic.
		r := recover()
		c.settle(fut, *new(V), fmt.Errorf("par: computation panicked: %v", r))
		panic(r)
	}()
	val, err := f()
	settled = true
	c.settle(fut, val, err)
}

func (c *Cache[K, V]) settle(fut *future[V], val V, err error) {
	c.mu.Lock()
	fut.val, fut.err = val, err
	if err != nil {
		fut.state = Failed
	} else {
		fut.state = Ready
	}
	c.mu.Unlock()
	close(fut.done)
}

// Get returns the settled result for key without waiting. ok reports whether
// the entry exists and has settled.
func (c *Cache[K, V]) Get(key K) (val V, err error, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fut, found := c.m[key]
	if !found || fut.state == Pending {
		return val, nil, false
	}
	return fut.val, fut.err, true
}

// State reports the lifecycle state of key.
func (c *Cache[K, V]) State(key K) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fut, ok := c.m[key]; ok {
		return fut.state
	}
	return Absent
}

// Len returns the number of keys, settled or not.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
