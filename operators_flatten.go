// Flattening operators for RxStream
// 高阶流展平：concat、merge、switch、exhaust 四种策略及其映射版本
package rxstream

import (
	"fmt"
	"sync"
)

// ============================================================================
// 内部辅助
// ============================================================================

// asObservable 检查高阶流发射的值是否为Observable
func asObservable(value interface{}) (Observable, error) {
	inner, ok := value.(Observable)
	if !ok || inner == nil {
		return nil, fmt.Errorf("%w: got %T", ErrNotObservable, value)
	}
	return inner, nil
}

// subscribeChild 以owner为所有者订阅inner
//
// 内层完成时先从owner上摘除再调用onComplete；内层错误直接交给owner。
func subscribeChild(owner *Subscriber, inner Observable, onComplete func()) (*Subscriber, Handle) {
	var handle Handle
	child := NewSubscriber(NewObserver(
		owner.OnNext,
		owner.OnError,
		func() {
			owner.Remove(handle)
			onComplete()
		},
	))
	handle = owner.Add(child)
	inner.Subscribe(child)
	return child, handle
}

// ============================================================================
// Merge / Concat
// ============================================================================

// mergeInternal 同时最多订阅concurrent个内层流，多出的按到达顺序缓冲
//
// concurrent<=0 表示不限制。外层和所有内层都完成后才完成。
func mergeInternal(concurrent int) Operator {
	return func(source Observable) Observable {
		return NewObservable(func(downstream *Subscriber) error {
			var (
				mu        sync.Mutex
				active    int
				buffer    []Observable
				outerDone bool
			)

			var subscribeInner func(inner Observable)
			subscribeInner = func(inner Observable) {
				subscribeChild(downstream, inner, func() {
					mu.Lock()
					if len(buffer) > 0 {
						next := buffer[0]
						buffer = buffer[1:]
						mu.Unlock()
						subscribeInner(next)
						return
					}
					active--
					done := outerDone && active == 0
					mu.Unlock()

					if done {
						downstream.OnComplete()
					}
				})
			}

			outer := NewSubscriber(NewObserver(
				func(value interface{}) {
					inner, err := asObservable(value)
					if err != nil {
						downstream.OnError(err)
						return
					}

					mu.Lock()
					if concurrent > 0 && active >= concurrent {
						buffer = append(buffer, inner)
						mu.Unlock()
						return
					}
					active++
					mu.Unlock()

					subscribeInner(inner)
				},
				downstream.OnError,
				func() {
					mu.Lock()
					outerDone = true
					done := active == 0 && len(buffer) == 0
					mu.Unlock()

					if done {
						downstream.OnComplete()
					}
				},
			))
			downstream.Add(outer)
			source.Subscribe(outer)
			return nil
		})
	}
}

// MergeAll 订阅每个内层流并交错转发它们的值
func MergeAll() Operator {
	return mergeInternal(0)
}

// MergeAllN 同时最多订阅concurrent个内层流
func MergeAllN(concurrent int) Operator {
	return mergeInternal(concurrent)
}

// ConcatAll 依次订阅内层流，前一个完成后才订阅下一个
func ConcatAll() Operator {
	return mergeInternal(1)
}

// ============================================================================
// Switch
// ============================================================================

// SwitchAll 只转发最新内层流的值，新内层到达时取消前一个
func SwitchAll() Operator {
	return func(source Observable) Observable {
		return NewObservable(func(downstream *Subscriber) error {
			var (
				mu            sync.Mutex
				current       *Subscriber
				currentHandle Handle
				outerDone     bool
			)

			outer := NewSubscriber(NewObserver(
				func(value interface{}) {
					inner, err := asObservable(value)
					if err != nil {
						downstream.OnError(err)
						return
					}

					mu.Lock()
					prev, prevHandle := current, currentHandle
					current, currentHandle = nil, 0
					mu.Unlock()

					if prev != nil {
						downstream.Remove(prevHandle)
						prev.Unsubscribe()
					}

					var child *Subscriber
					var mine bool
					child, handle := subscribeChild(downstream, inner, func() {
						mu.Lock()
						if !mine || current == child {
							current, currentHandle = nil, 0
						}
						done := outerDone && current == nil
						mu.Unlock()

						if done {
							downstream.OnComplete()
						}
					})

					mu.Lock()
					mine = true
					if !child.IsStopped() && !child.IsUnsubscribed() {
						current, currentHandle = child, handle
					}
					mu.Unlock()
				},
				downstream.OnError,
				func() {
					mu.Lock()
					outerDone = true
					done := current == nil
					mu.Unlock()

					if done {
						downstream.OnComplete()
					}
				},
			))
			downstream.Add(outer)
			source.Subscribe(outer)
			return nil
		})
	}
}

// ============================================================================
// Exhaust
// ============================================================================

// ExhaustAll 内层流活跃期间忽略新到达的内层流
func ExhaustAll() Operator {
	return func(source Observable) Observable {
		return NewObservable(func(downstream *Subscriber) error {
			var (
				mu        sync.Mutex
				active    bool
				outerDone bool
			)

			outer := NewSubscriber(NewObserver(
				func(value interface{}) {
					inner, err := asObservable(value)
					if err != nil {
						downstream.OnError(err)
						return
					}

					mu.Lock()
					if active {
						mu.Unlock()
						return
					}
					active = true
					mu.Unlock()

					subscribeChild(downstream, inner, func() {
						mu.Lock()
						active = false
						done := outerDone
						mu.Unlock()

						if done {
							downstream.OnComplete()
						}
					})
				},
				downstream.OnError,
				func() {
					mu.Lock()
					outerDone = true
					done := !active
					mu.Unlock()

					if done {
						downstream.OnComplete()
					}
				},
			))
			downstream.Add(outer)
			source.Subscribe(outer)
			return nil
		})
	}
}

// ============================================================================
// 映射版本
// ============================================================================

// Projection 把一个值投射为内层Observable
type Projection func(value interface{}) Observable

func project(fn Projection) Operator {
	return Map(func(value interface{}) (interface{}, error) {
		return fn(value), nil
	})
}

// ConcatMap 投射后依次展平
func ConcatMap(fn Projection) Operator {
	return func(source Observable) Observable {
		return Pipe(source, project(fn), ConcatAll())
	}
}

// MergeMap 投射后并发展平
func MergeMap(fn Projection) Operator {
	return func(source Observable) Observable {
		return Pipe(source, project(fn), MergeAll())
	}
}

// SwitchMap 投射后只保留最新的内层流
func SwitchMap(fn Projection) Operator {
	return func(source Observable) Observable {
		return Pipe(source, project(fn), SwitchAll())
	}
}

// ExhaustMap 投射后在内层活跃期间忽略新值
func ExhaustMap(fn Projection) Operator {
	return func(source Observable) Observable {
		return Pipe(source, project(fn), ExhaustAll())
	}
}
