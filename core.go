// Package rxstream provides a reactive stream runtime for Go
// 响应式流运行时：惰性执行、可取消、基于推送的事件管道，调度方式可插拔
package rxstream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ============================================================================
// 核心类型定义
// ============================================================================

// Kind 通知的种类
type Kind int

const (
	// KindNext 值通知
	KindNext Kind = iota
	// KindError 错误通知（终止）
	KindError
	// KindComplete 完成通知（终止）
	KindComplete
)

// String 返回通知种类的名称
func (k Kind) String() string {
	switch k {
	case KindNext:
		return "next"
	case KindError:
		return "error"
	case KindComplete:
		return "complete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText 以名称形式序列化
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 从名称解析通知种类
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "next":
		*k = KindNext
	case "error":
		*k = KindError
	case "complete":
		*k = KindComplete
	default:
		return fmt.Errorf("rxstream: unknown notification kind %q", text)
	}
	return nil
}

// Item 表示流中的一个通知：值、错误或完成
type Item struct {
	Kind  Kind        // 通知种类
	Value interface{} // 数据值，仅KindNext有效
	Error error       // 错误信息，仅KindError有效
}

// IsError 检查是否为错误通知
func (item Item) IsError() bool {
	return item.Kind == KindError
}

// IsComplete 检查是否为完成通知
func (item Item) IsComplete() bool {
	return item.Kind == KindComplete
}

// IsTerminal 检查是否为终止通知
func (item Item) IsTerminal() bool {
	return item.Kind != KindNext
}

// Accept 把通知投递给观察者
func (item Item) Accept(observer Observer) {
	switch item.Kind {
	case KindNext:
		observer.OnNext(item.Value)
	case KindError:
		observer.OnError(item.Error)
	case KindComplete:
		observer.OnComplete()
	}
}

// CreateItem 创建值通知
func CreateItem(value interface{}) Item {
	return Item{Kind: KindNext, Value: value}
}

// CreateErrorItem 创建错误通知
func CreateErrorItem(err error) Item {
	return Item{Kind: KindError, Error: err}
}

// CreateCompleteItem 创建完成通知
func CreateCompleteItem() Item {
	return Item{Kind: KindComplete}
}

// ============================================================================
// 函数类型定义
// ============================================================================

// OnNext 处理下一个值的函数
type OnNext func(value interface{})

// OnError 处理错误的函数
type OnError func(err error)

// OnComplete 处理完成的函数
type OnComplete func()

// Predicate 谓词函数，用于过滤
type Predicate func(value interface{}) bool

// Transformer 转换函数，用于映射
type Transformer func(value interface{}) (interface{}, error)

// Accumulator 累加函数，用于Scan
type Accumulator func(accumulator, value interface{}) (interface{}, error)

// ============================================================================
// Observer 观察者
// ============================================================================

// Observer 观察者，接收三种通知
//
// OnError 或 OnComplete 之后不会再有任何调用，这一约束由 Subscriber 包装器保证。
type Observer interface {
	OnNext(value interface{})
	OnError(err error)
	OnComplete()
}

// callbackObserver 由三个回调组成的观察者
type callbackObserver struct {
	onNext     OnNext
	onError    OnError
	onComplete OnComplete
}

// NewObserver 用回调函数构建观察者，缺省的回调以空操作填充
//
// 未提供错误回调时，错误会以警告级别写入日志而不会被悄悄吞掉。
func NewObserver(onNext OnNext, onError OnError, onComplete OnComplete) Observer {
	if onNext == nil {
		onNext = func(interface{}) {}
	}
	if onError == nil {
		onError = func(err error) {
			logger().Warn("unhandled error in observer", "error", err)
		}
	}
	if onComplete == nil {
		onComplete = func() {}
	}
	return &callbackObserver{onNext: onNext, onError: onError, onComplete: onComplete}
}

func (o *callbackObserver) OnNext(value interface{}) { o.onNext(value) }
func (o *callbackObserver) OnError(err error)        { o.onError(err) }
func (o *callbackObserver) OnComplete()              { o.onComplete() }

// ItemObserver 以单个函数接收物化通知的观察者
type ItemObserver func(item Item)

func (f ItemObserver) OnNext(value interface{}) { f(CreateItem(value)) }
func (f ItemObserver) OnError(err error)        { f(CreateErrorItem(err)) }
func (f ItemObserver) OnComplete()              { f(CreateCompleteItem()) }

// ============================================================================
// 生命周期管理
// ============================================================================

// Subscription 订阅接口，代表一次执行及其拥有的资源
type Subscription interface {
	// Unsubscribe 取消订阅，重复调用无额外效果
	Unsubscribe()
	// IsUnsubscribed 检查是否已取消订阅
	IsUnsubscribed() bool
}

// ============================================================================
// 调度器接口
// ============================================================================

// Scheduler 调度器接口：时钟加上任务执行时机的控制
type Scheduler interface {
	// Now 返回调度器的当前时间，对同一实例单调
	Now() time.Time
	// Schedule 调度一个任务，等价于零延迟
	Schedule(action func()) Subscription
	// ScheduleWithDelay 延迟调度一个任务，负延迟视为零；返回的订阅用于取消尚未执行的任务
	ScheduleWithDelay(action func(), delay time.Duration) Subscription
}

// ============================================================================
// Observable 核心接口
// ============================================================================

// Observable 可观察序列：惰性的、可重复订阅的生产者
type Observable interface {
	// Subscribe 订阅观察者
	Subscribe(observer Observer) Subscription

	// SubscribeWithCallbacks 使用回调函数订阅
	SubscribeWithCallbacks(onNext OnNext, onError OnError, onComplete OnComplete) Subscription

	// Pipe 从左到右依次应用操作符
	Pipe(operators ...Operator) Observable
}

// Operator 操作符：从一个流到另一个流的纯函数
type Operator func(source Observable) Observable

// ============================================================================
// 配置选项
// ============================================================================

// Option 配置选项接口
type Option interface {
	Apply(config *Config)
}

// Config 配置结构
type Config struct {
	// Scheduler 显式指定的调度器；为nil时使用各操作符文档中的默认值
	Scheduler Scheduler
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{}
}

func newConfig(options ...Option) *Config {
	config := DefaultConfig()
	for _, opt := range options {
		if opt != nil {
			opt.Apply(config)
		}
	}
	return config
}

// schedulerOr 返回配置的调度器，未配置时返回fallback
func (c *Config) schedulerOr(fallback Scheduler) Scheduler {
	if c.Scheduler != nil {
		return c.Scheduler
	}
	return fallback
}

// WithScheduler 创建使用指定调度器的选项
func WithScheduler(scheduler Scheduler) Option {
	return &schedulerOption{scheduler: scheduler}
}

// schedulerOption 调度器选项
type schedulerOption struct {
	scheduler Scheduler
}

// Apply 应用调度器选项
func (o *schedulerOption) Apply(config *Config) {
	config.Scheduler = o.scheduler
}

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrNotObservable 高阶流发射了非Observable的值
	ErrNotObservable = errors.New("rxstream: inner value is not an Observable")
	// ErrEmpty 序列中没有任何元素
	ErrEmpty = errors.New("rxstream: no elements in sequence")
	// ErrNotConnectable RefCount作用在非可连接的流上
	ErrNotConnectable = errors.New("rxstream: source is not a ConnectableObservable")
)

// PanicError 在边界处被恢复的panic
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("rxstream: recovered panic: %v", e.Value)
}

// Unwrap 当panic的值本身是error时返回它
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// SafeExecute 安全执行函数，把panic转换为错误
func SafeExecute(action func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	action()
	return nil
}

// ============================================================================
// 日志
// ============================================================================

var pkgLogger atomic.Pointer[slog.Logger]

// SetLogger 设置包级日志记录器，传入nil恢复为slog.Default()
func SetLogger(l *slog.Logger) {
	pkgLogger.Store(l)
}

// Logger 返回当前的包级日志记录器
func Logger() *slog.Logger {
	return logger()
}

func logger() *slog.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
