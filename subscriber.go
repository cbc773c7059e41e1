// Subscriber implementation for RxStream
// 订阅者：包装下游观察者，保证终止通知只发生一次，并拥有本次执行的资源
package rxstream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber 一次订阅的执行上下文
//
// 它既是传给生产者的观察者，也是返回给调用方的订阅。收到 OnError 或
// OnComplete 后标记为停止并释放所有资源，之后的通知全部被忽略。
type Subscriber struct {
	*CompositeSubscription

	destination Observer
	stopped     int32
	scheduler   Scheduler

	ctxOnce sync.Once
	ctx     context.Context
}

// NewSubscriber 创建包装destination的订阅者
func NewSubscriber(destination Observer) *Subscriber {
	if destination == nil {
		destination = NewObserver(nil, nil, nil)
	}
	return &Subscriber{
		CompositeSubscription: NewCompositeSubscription(),
		destination:           destination,
	}
}

// toSubscriber 已经是Subscriber时直接复用，否则包装一层
func toSubscriber(observer Observer) *Subscriber {
	if s, ok := observer.(*Subscriber); ok {
		return s
	}
	return NewSubscriber(observer)
}

// OnNext 转发值；停止或已取消订阅后忽略
func (s *Subscriber) OnNext(value interface{}) {
	if s.IsStopped() || s.IsUnsubscribed() {
		return
	}
	s.destination.OnNext(value)
}

// OnError 转发错误并释放资源，只生效一次
func (s *Subscriber) OnError(err error) {
	if s.IsUnsubscribed() || !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return
	}
	defer s.Unsubscribe()
	s.destination.OnError(err)
}

// OnComplete 转发完成并释放资源，只生效一次
func (s *Subscriber) OnComplete() {
	if s.IsUnsubscribed() || !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return
	}
	defer s.Unsubscribe()
	s.destination.OnComplete()
}

// IsStopped 是否已收到终止通知
func (s *Subscriber) IsStopped() bool {
	return atomic.LoadInt32(&s.stopped) == 1
}

// Scheduler 返回订阅时环境中的调度器，可能为nil
func (s *Subscriber) Scheduler() Scheduler {
	return s.scheduler
}

// Context 返回在取消订阅时被取消的上下文，供基于goroutine的生产者使用
func (s *Subscriber) Context() context.Context {
	s.ctxOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.ctx = ctx
		s.AddTeardown(cancel)
	})
	return s.ctx
}

// ============================================================================
// 调度辅助
// ============================================================================

// scheduleOn 在调度器上延迟执行action
//
// 挂起的任务登记在owner上，owner释放时任务被取消；任务执行时从owner上摘除。
func scheduleOn(owner *CompositeSubscription, scheduler Scheduler, delay time.Duration, action func()) Subscription {
	var (
		mu     sync.Mutex
		handle Handle
		ran    bool
	)

	task := scheduler.ScheduleWithDelay(func() {
		mu.Lock()
		ran = true
		h := handle
		mu.Unlock()

		if h != 0 {
			owner.Remove(h)
		}
		action()
	}, delay)

	mu.Lock()
	if !ran {
		handle = owner.Add(task)
	}
	mu.Unlock()

	return task
}
