// Time-based operators for RxStream
// 时间相关操作符：节流和延迟，时间以调度器时钟为准
package rxstream

import (
	"sync"
	"time"
)

// ============================================================================
// 节流操作符
// ============================================================================

// ThrottleTime 前沿节流
//
// 放行一个值后的duration内丢弃所有值；窗口由调度器计时，默认 AsyncScheduler。
// 错误和完成立即转发。
func ThrottleTime(duration time.Duration, options ...Option) Operator {
	config := newConfig(options...)

	return func(source Observable) Observable {
		return lift(source, func(downstream *Subscriber) Observer {
			scheduler := config.schedulerOr(AsyncScheduler)

			var (
				mu        sync.Mutex
				throttled bool
			)

			return NewObserver(
				func(value interface{}) {
					mu.Lock()
					if throttled {
						mu.Unlock()
						return
					}
					throttled = true
					mu.Unlock()

					scheduleOn(downstream.CompositeSubscription, scheduler, duration, func() {
						mu.Lock()
						throttled = false
						mu.Unlock()
					})
					downstream.OnNext(value)
				},
				downstream.OnError,
				downstream.OnComplete,
			)
		})
	}
}

// ============================================================================
// 延迟操作符
// ============================================================================

// Delay 把每个值和完成通知推迟duration后转发，错误立即转发
//
// 默认使用 AsyncScheduler。
func Delay(duration time.Duration, options ...Option) Operator {
	config := newConfig(options...)

	return func(source Observable) Observable {
		return lift(source, func(downstream *Subscriber) Observer {
			scheduler := config.schedulerOr(AsyncScheduler)

			return NewObserver(
				func(value interface{}) {
					scheduleOn(downstream.CompositeSubscription, scheduler, duration, func() {
						downstream.OnNext(value)
					})
				},
				downstream.OnError,
				func() {
					scheduleOn(downstream.CompositeSubscription, scheduler, duration, downstream.OnComplete)
				},
			)
		})
	}
}
