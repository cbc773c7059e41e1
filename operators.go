// Transformation operators for RxStream
// 基础操作符：转换、过滤、累加、截取、副作用以及调度切换
package rxstream

// ============================================================================
// 转换操作符
// ============================================================================

// applyTransformer 执行转换函数，panic转换为 *PanicError
func applyTransformer(transform Transformer, value interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return transform(value)
}

func applyAccumulator(accumulator Accumulator, acc, value interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return accumulator(acc, value)
}

// Map 对每个值应用转换函数
//
// 转换函数返回错误或panic时，下游收到该错误，上游被取消订阅。
func Map(transform Transformer) Operator {
	return func(source Observable) Observable {
		return lift(source, func(downstream *Subscriber) Observer {
			return NewObserver(
				func(value interface{}) {
					result, err := applyTransformer(transform, value)
					if err != nil {
						downstream.OnError(err)
						return
					}
					downstream.OnNext(result)
				},
				downstream.OnError,
				downstream.OnComplete,
			)
		})
	}
}

// MapTo 把每个值替换为固定值
func MapTo(value interface{}) Operator {
	return Map(func(interface{}) (interface{}, error) {
		return value, nil
	})
}

// ============================================================================
// 过滤操作符
// ============================================================================

// Filter 只转发满足谓词的值
func Filter(predicate Predicate) Operator {
	return func(source Observable) Observable {
		return lift(source, func(downstream *Subscriber) Observer {
			return NewObserver(
				func(value interface{}) {
					var keep bool
					if err := SafeExecute(func() { keep = predicate(value) }); err != nil {
						downstream.OnError(err)
						return
					}
					if keep {
						downstream.OnNext(value)
					}
				},
				downstream.OnError,
				downstream.OnComplete,
			)
		})
	}
}

// Take 只取前count个值然后完成；count<=0 时立即完成且不订阅上游
func Take(count int) Operator {
	return func(source Observable) Observable {
		if count <= 0 {
			return Empty()
		}
		return lift(source, func(downstream *Subscriber) Observer {
			taken := 0
			return NewObserver(
				func(value interface{}) {
					if taken >= count {
						return
					}
					taken++
					downstream.OnNext(value)
					if taken == count {
						downstream.OnComplete()
					}
				},
				downstream.OnError,
				downstream.OnComplete,
			)
		})
	}
}

// First 只取第一个值然后完成；上游未发射任何值就完成时发出 ErrEmpty
func First() Operator {
	return func(source Observable) Observable {
		return lift(source, func(downstream *Subscriber) Observer {
			return NewObserver(
				func(value interface{}) {
					downstream.OnNext(value)
					downstream.OnComplete()
				},
				downstream.OnError,
				func() {
					downstream.OnError(ErrEmpty)
				},
			)
		})
	}
}

// ============================================================================
// 累加操作符
// ============================================================================

// Scan 对每个值应用累加函数并发射中间结果
//
// 累加状态属于单次订阅，每次订阅都从seed重新开始。
func Scan(accumulator Accumulator, seed interface{}) Operator {
	return func(source Observable) Observable {
		return lift(source, func(downstream *Subscriber) Observer {
			acc := seed
			return NewObserver(
				func(value interface{}) {
					next, err := applyAccumulator(accumulator, acc, value)
					if err != nil {
						downstream.OnError(err)
						return
					}
					acc = next
					downstream.OnNext(acc)
				},
				downstream.OnError,
				downstream.OnComplete,
			)
		})
	}
}

// ============================================================================
// 副作用操作符
// ============================================================================

// Tap 在通知转发前执行副作用，nil回调被跳过；回调panic时转为错误通知
func Tap(onNext OnNext, onError OnError, onComplete OnComplete) Operator {
	return func(source Observable) Observable {
		return lift(source, func(downstream *Subscriber) Observer {
			return NewObserver(
				func(value interface{}) {
					if onNext != nil {
						if err := SafeExecute(func() { onNext(value) }); err != nil {
							downstream.OnError(err)
							return
						}
					}
					downstream.OnNext(value)
				},
				func(err error) {
					if onError != nil {
						if tapErr := SafeExecute(func() { onError(err) }); tapErr != nil {
							downstream.OnError(tapErr)
							return
						}
					}
					downstream.OnError(err)
				},
				func() {
					if onComplete != nil {
						if err := SafeExecute(onComplete); err != nil {
							downstream.OnError(err)
							return
						}
					}
					downstream.OnComplete()
				},
			)
		})
	}
}

// ============================================================================
// 调度操作符
// ============================================================================

// ObserveOn 在指定调度器上投递所有通知，顺序保持不变
func ObserveOn(scheduler Scheduler) Operator {
	return func(source Observable) Observable {
		return lift(source, func(downstream *Subscriber) Observer {
			deliver := func(item Item) {
				scheduleOn(downstream.CompositeSubscription, scheduler, 0, func() {
					item.Accept(downstream)
				})
			}
			return ItemObserver(deliver)
		})
	}
}

// SubscribeOn 在指定调度器上执行对上游的订阅
func SubscribeOn(scheduler Scheduler) Operator {
	return func(source Observable) Observable {
		return NewObservable(func(downstream *Subscriber) error {
			upstream := NewSubscriber(downstream)
			downstream.Add(upstream)
			scheduleOn(downstream.CompositeSubscription, scheduler, 0, func() {
				source.Subscribe(upstream)
			})
			return nil
		})
	}
}
