// ConnectableObservable implementation for RxStream
// 可连接的Observable：订阅者注册在内部主题上，Connect时才订阅源
package rxstream

import (
	"sync"
)

// ============================================================================
// ConnectableObservable 实现
// ============================================================================

// SubjectFactory 创建多播使用的主题
type SubjectFactory func() MulticastSubject

// Connectable 可连接的Observable
type Connectable interface {
	Observable

	// Connect 订阅源并开始多播；已连接时返回同一个连接
	Connect() Subscription
	// RefCount 按订阅者数量自动连接和断开
	RefCount() Observable
}

// ConnectableObservable 把一个源多播给所有订阅者
//
// 主题在第一次使用时由工厂创建；主题终止后的下一次订阅或连接会创建新主题。
type ConnectableObservable struct {
	source  Observable
	factory SubjectFactory

	mu         sync.Mutex
	subject    MulticastSubject
	connection *CompositeSubscription
	refCount   int
}

// NewConnectableObservable 创建可连接的Observable
func NewConnectableObservable(source Observable, factory SubjectFactory) *ConnectableObservable {
	if factory == nil {
		factory = func() MulticastSubject { return NewSubject() }
	}
	return &ConnectableObservable{
		source:  source,
		factory: factory,
	}
}

// Multicast 通过subjectFactory创建的主题多播source
func Multicast(source Observable, factory SubjectFactory) *ConnectableObservable {
	return NewConnectableObservable(source, factory)
}

// Publish 通过发布主题多播source
func Publish(source Observable) *ConnectableObservable {
	return Multicast(source, func() MulticastSubject { return NewSubject() })
}

// PublishBehavior 通过行为主题多播source
func PublishBehavior(source Observable, initialValue interface{}) *ConnectableObservable {
	return Multicast(source, func() MulticastSubject { return NewBehaviorSubject(initialValue) })
}

// PublishReplay 通过重放主题多播source
func PublishReplay(source Observable, bufferSize int, options ...Option) *ConnectableObservable {
	return Multicast(source, func() MulticastSubject { return NewReplaySubject(bufferSize, 0, options...) })
}

// subjectLocked 返回当前主题，必要时通过工厂重建；调用方持有锁
func (c *ConnectableObservable) subjectLocked() MulticastSubject {
	if c.subject == nil || c.subject.IsStopped() {
		c.subject = c.factory()
	}
	return c.subject
}

// Subscribe 在内部主题上注册观察者，不会触发连接
func (c *ConnectableObservable) Subscribe(observer Observer) Subscription {
	c.mu.Lock()
	subject := c.subjectLocked()
	c.mu.Unlock()

	return subject.Subscribe(observer)
}

// SubscribeWithCallbacks 使用回调函数订阅
func (c *ConnectableObservable) SubscribeWithCallbacks(onNext OnNext, onError OnError, onComplete OnComplete) Subscription {
	return c.Subscribe(NewObserver(onNext, onError, onComplete))
}

// Pipe 从左到右依次应用操作符
func (c *ConnectableObservable) Pipe(operators ...Operator) Observable {
	return Pipe(c, operators...)
}

// Connect 订阅源并把通知转发给主题
//
// 已连接时返回同一个连接。源终止后连接自动释放，下一次Connect重新订阅源。
func (c *ConnectableObservable) Connect() Subscription {
	c.mu.Lock()
	if c.connection != nil {
		connection := c.connection
		c.mu.Unlock()
		return connection
	}
	subject := c.subjectLocked()
	connection := NewCompositeSubscription()
	c.connection = connection
	c.mu.Unlock()

	connection.AddTeardown(func() {
		c.mu.Lock()
		if c.connection == connection {
			c.connection = nil
		}
		c.mu.Unlock()
		logger().Debug("connectable disconnected")
	})

	upstream := NewSubscriber(NewObserver(
		subject.OnNext,
		func(err error) {
			subject.OnError(err)
			connection.Unsubscribe()
		},
		func() {
			subject.OnComplete()
			connection.Unsubscribe()
		},
	))
	connection.Add(upstream)

	logger().Debug("connectable connected")
	c.source.Subscribe(upstream)

	return connection
}

// IsConnected 检查是否已连接
func (c *ConnectableObservable) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connection != nil
}

// RefCount 返回按订阅者计数自动连接的Observable
//
// 计数从0变为1时连接，从1变为0时断开连接。
func (c *ConnectableObservable) RefCount() Observable {
	return NewObservable(func(s *Subscriber) error {
		c.mu.Lock()
		c.refCount++
		shouldConnect := c.refCount == 1
		c.mu.Unlock()

		s.AddTeardown(func() {
			c.mu.Lock()
			c.refCount--
			var connection *CompositeSubscription
			if c.refCount == 0 {
				connection = c.connection
			}
			c.mu.Unlock()

			if connection != nil {
				connection.Unsubscribe()
			}
		})

		inner := NewSubscriber(s)
		s.Add(inner)
		c.Subscribe(inner)

		if shouldConnect && !s.IsUnsubscribed() {
			c.Connect()
		}
		return nil
	})
}

// AutoConnect 第count个订阅者到达时连接一次，之后不再自动断开
func (c *ConnectableObservable) AutoConnect(count int) Observable {
	var (
		mu        sync.Mutex
		arrived   int
		connected bool
	)

	return NewObservable(func(s *Subscriber) error {
		inner := NewSubscriber(s)
		s.Add(inner)
		c.Subscribe(inner)

		mu.Lock()
		arrived++
		connect := !connected && arrived >= count
		if connect {
			connected = true
		}
		mu.Unlock()

		if connect {
			c.Connect()
		}
		return nil
	})
}

// ============================================================================
// 多播操作符
// ============================================================================

// RefCount 作用在可连接的Observable上，其他输入会得到 ErrNotConnectable 错误
func RefCount() Operator {
	return func(source Observable) Observable {
		if connectable, ok := source.(Connectable); ok {
			return connectable.RefCount()
		}
		return Throw(ErrNotConnectable)
	}
}

// Share 等价于 Publish 之后接 RefCount
func Share() Operator {
	return func(source Observable) Observable {
		return Publish(source).RefCount()
	}
}
