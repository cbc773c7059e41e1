package rxstream

import (
	"sync"
	"testing"
	"time"
)

// recorder 记录收到的所有通知，终止时关闭done
type recorder struct {
	mu    sync.Mutex
	items []Item
	done  chan struct{}
	once  sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) observer() Observer {
	return ItemObserver(func(item Item) {
		r.mu.Lock()
		r.items = append(r.items, item)
		r.mu.Unlock()
		if item.IsTerminal() {
			r.once.Do(func() { close(r.done) })
		}
	})
}

func (r *recorder) snapshot() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Item(nil), r.items...)
}

func (r *recorder) values() []interface{} {
	var values []interface{}
	for _, item := range r.snapshot() {
		if item.Kind == KindNext {
			values = append(values, item.Value)
		}
	}
	return values
}

// terminal 返回终止通知，没有时返回nil
func (r *recorder) terminal() *Item {
	items := r.snapshot()
	if len(items) == 0 || !items[len(items)-1].IsTerminal() {
		return nil
	}
	last := items[len(items)-1]
	return &last
}

func (r *recorder) completed() bool {
	term := r.terminal()
	return term != nil && term.IsComplete()
}

func (r *recorder) err() error {
	if term := r.terminal(); term != nil && term.IsError() {
		return term.Error
	}
	return nil
}

// wait 等待终止通知
func (r *recorder) wait(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(timeout):
		t.Fatalf("等待终止通知超时，已收到: %v", r.snapshot())
	}
}

// countingSource 记录被订阅和取消订阅的次数
type countingSource struct {
	mu           sync.Mutex
	subscribed   int
	unsubscribed int
	inner        Observable
}

func newCountingSource(inner Observable) *countingSource {
	return &countingSource{inner: inner}
}

func (c *countingSource) observable() Observable {
	return NewObservable(func(s *Subscriber) error {
		c.mu.Lock()
		c.subscribed++
		c.mu.Unlock()

		s.AddTeardown(func() {
			c.mu.Lock()
			c.unsubscribed++
			c.mu.Unlock()
		})
		s.Add(c.inner.Subscribe(NewObserver(s.OnNext, s.OnError, s.OnComplete)))
		return nil
	})
}

func (c *countingSource) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed, c.unsubscribed
}
