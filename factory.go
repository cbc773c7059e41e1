// Factory functions for RxStream
// 创建函数：同步源、基于调度器的时间源，以及事件源和channel的适配
package rxstream

import (
	"time"
)

// ============================================================================
// 同步工厂函数
// ============================================================================

// Of 依次同步发射给定的值然后完成
func Of(values ...interface{}) Observable {
	return FromSlice(values)
}

// Just 与Of相同
func Just(values ...interface{}) Observable {
	return FromSlice(values)
}

// FromSlice 从切片创建Observable，同步发射
func FromSlice(slice []interface{}) Observable {
	return NewObservable(func(s *Subscriber) error {
		for _, value := range slice {
			if s.IsUnsubscribed() {
				return nil
			}
			s.OnNext(value)
		}
		s.OnComplete()
		return nil
	})
}

// Empty 创建一个空的Observable，订阅时立即完成
func Empty() Observable {
	return NewObservable(func(s *Subscriber) error {
		s.OnComplete()
		return nil
	})
}

// Never 创建一个永不发射任何通知的Observable
func Never() Observable {
	return NewObservable(func(*Subscriber) error {
		return nil
	})
}

// Throw 创建一个订阅时立即发出错误的Observable
func Throw(err error) Observable {
	return NewObservable(func(s *Subscriber) error {
		s.OnError(err)
		return nil
	})
}

// Defer 延迟到订阅时才通过factory创建真正的Observable
func Defer(factory func() Observable) Observable {
	return NewObservable(func(s *Subscriber) error {
		s.Add(factory().Subscribe(NewObserver(s.OnNext, s.OnError, s.OnComplete)))
		return nil
	})
}

// ============================================================================
// 基于调度器的工厂函数
// ============================================================================

// schedulerFor 返回订阅环境中的调度器，没有时使用fallback
func schedulerFor(s *Subscriber, fallback Scheduler) Scheduler {
	if scheduler := s.Scheduler(); scheduler != nil {
		return scheduler
	}
	return fallback
}

// Range 发射 [start, start+count) 的整数然后完成
//
// 每个值作为一个独立任务调度，默认使用 QueueScheduler。
func Range(start, count int, options ...Option) Observable {
	return NewObservable(func(s *Subscriber) error {
		scheduler := schedulerFor(s, QueueScheduler)

		current := start
		end := start + count
		var step func()
		step = func() {
			if s.IsUnsubscribed() {
				return
			}
			if current >= end {
				s.OnComplete()
				return
			}
			s.OnNext(current)
			current++
			scheduleOn(s.CompositeSubscription, scheduler, 0, step)
		}

		scheduleOn(s.CompositeSubscription, scheduler, 0, step)
		return nil
	}, options...)
}

// Interval 每隔period发射一次递增整数 0, 1, 2 ...，永不完成
//
// 默认使用 AsyncScheduler。
func Interval(period time.Duration, options ...Option) Observable {
	return NewObservable(func(s *Subscriber) error {
		scheduler := schedulerFor(s, AsyncScheduler)

		counter := 0
		var tick func()
		tick = func() {
			if s.IsUnsubscribed() {
				return
			}
			value := counter
			counter++
			scheduleOn(s.CompositeSubscription, scheduler, period, tick)
			s.OnNext(value)
		}

		scheduleOn(s.CompositeSubscription, scheduler, period, tick)
		return nil
	}, options...)
}

// Timer 在delay之后发射0然后完成
//
// 默认使用 AsyncScheduler。
func Timer(delay time.Duration, options ...Option) Observable {
	return NewObservable(func(s *Subscriber) error {
		scheduler := schedulerFor(s, AsyncScheduler)

		scheduleOn(s.CompositeSubscription, scheduler, delay, func() {
			s.OnNext(0)
			s.OnComplete()
		})
		return nil
	}, options...)
}

// ============================================================================
// 外部数据源适配
// ============================================================================

// EventSource 宿主事件源
//
// AddListener 注册监听器并返回用于注销它的函数。
type EventSource interface {
	AddListener(name string, listener func(event interface{})) (remove func())
}

// FromEvent 把宿主事件源上的命名事件转换为Observable，永不完成
//
// 监听器在订阅时注册，在取消订阅时注销。
func FromEvent(source EventSource, name string) Observable {
	return NewObservable(func(s *Subscriber) error {
		remove := source.AddListener(name, func(event interface{}) {
			s.OnNext(event)
		})
		if remove != nil {
			s.AddTeardown(remove)
		}
		return nil
	})
}

// FromChannel 从Go channel创建Observable，channel关闭时完成
//
// 读取在独立的goroutine中进行，取消订阅后停止读取。
func FromChannel(ch <-chan interface{}) Observable {
	return NewObservable(func(s *Subscriber) error {
		ctx := s.Context()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case value, ok := <-ch:
					if !ok {
						s.OnComplete()
						return
					}
					s.OnNext(value)
				}
			}
		}()

		return nil
	})
}

// FromItemChannel 从物化通知的channel创建Observable
func FromItemChannel(ch <-chan Item) Observable {
	return NewObservable(func(s *Subscriber) error {
		ctx := s.Context()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-ch:
					if !ok {
						s.OnComplete()
						return
					}
					item.Accept(s)
					if item.IsTerminal() {
						return
					}
				}
			}
		}()

		return nil
	})
}

// ============================================================================
// 组合工厂函数
// ============================================================================

func observablesToSlice(observables []Observable) []interface{} {
	values := make([]interface{}, len(observables))
	for i, obs := range observables {
		values[i] = obs
	}
	return values
}

// Merge 并发订阅所有输入，按到达顺序转发值，全部完成后完成
func Merge(observables ...Observable) Observable {
	return FromSlice(observablesToSlice(observables)).Pipe(MergeAll())
}

// Concat 依次订阅输入，前一个完成后才订阅下一个
func Concat(observables ...Observable) Observable {
	return FromSlice(observablesToSlice(observables)).Pipe(ConcatAll())
}
