// Observable implementation for RxStream
// Observable核心实现：保存生产者函数，每次订阅独立执行一次
package rxstream

// ============================================================================
// Observable 核心实现
// ============================================================================

// Producer 生产者函数
//
// 它通过subscriber发出通知，并把需要释放的资源挂到subscriber上。
// 返回的错误会作为 OnError 通知交给观察者，不会从 Subscribe 中传播出去。
type Producer func(subscriber *Subscriber) error

// observableImpl Observable的核心实现
type observableImpl struct {
	producer Producer
	config   *Config
}

// NewObservable 创建新的Observable
func NewObservable(producer Producer, options ...Option) Observable {
	return &observableImpl{
		producer: producer,
		config:   newConfig(options...),
	}
}

// Create 从生产者函数创建Observable，与NewObservable相同
func Create(producer Producer, options ...Option) Observable {
	return NewObservable(producer, options...)
}

// Subscribe 订阅观察者
//
// 每次调用都会重新执行生产者，不同订阅之间没有共享状态。
func (o *observableImpl) Subscribe(observer Observer) Subscription {
	subscriber := toSubscriber(observer)
	if subscriber.IsUnsubscribed() {
		return subscriber
	}

	subscriber.scheduler = o.config.Scheduler
	o.run(subscriber)

	return subscriber
}

// run 执行生产者；同步错误和panic都转换为错误通知
func (o *observableImpl) run(subscriber *Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			subscriber.OnError(&PanicError{Value: r})
		}
	}()

	if o.producer == nil {
		return
	}
	if err := o.producer(subscriber); err != nil {
		subscriber.OnError(err)
	}
}

// SubscribeWithCallbacks 使用回调函数订阅
func (o *observableImpl) SubscribeWithCallbacks(onNext OnNext, onError OnError, onComplete OnComplete) Subscription {
	return o.Subscribe(NewObserver(onNext, onError, onComplete))
}

// Pipe 从左到右依次应用操作符
func (o *observableImpl) Pipe(operators ...Operator) Observable {
	return Pipe(o, operators...)
}

// Pipe 把操作符从左到右组合：opN(...op2(op1(source)))
func Pipe(source Observable, operators ...Operator) Observable {
	for _, op := range operators {
		if op != nil {
			source = op(source)
		}
	}
	return source
}

// lift 基于上游构造派生Observable
//
// build为每次订阅构造派生观察者；上游订阅挂在下游订阅上，
// 取消下游会一并取消上游。
func lift(source Observable, build func(downstream *Subscriber) Observer) Observable {
	return NewObservable(func(downstream *Subscriber) error {
		upstream := NewSubscriber(build(downstream))
		downstream.Add(upstream)
		source.Subscribe(upstream)
		return nil
	})
}
