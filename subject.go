// Subject implementations for RxStream
// 实现Subject系统：Subject、BehaviorSubject、ReplaySubject、AsyncSubject
package rxstream

import (
	"sync"
	"time"
)

// ============================================================================
// 接口定义
// ============================================================================

// MulticastSubject 既是Observable又是Observer的多播源
type MulticastSubject interface {
	Observable
	Observer

	// IsStopped 是否已收到终止通知
	IsStopped() bool
	// HasObservers 是否有已注册的观察者
	HasObservers() bool
	// ObserverCount 已注册的观察者数量
	ObserverCount() int
}

// subjectStrategy 不同主题变体的记录与补发策略，所有方法都在主题锁内调用
type subjectStrategy interface {
	// onNext 记录值，返回是否立即广播
	onNext(value interface{}) bool
	// replay 新订阅者在注册前需要补发的值；terminal非nil表示主题已终止
	replay(terminal *Item) []interface{}
	// onComplete 完成通知之前需要广播的值
	onComplete() []interface{}
}

// ============================================================================
// Subject - 发布主题
// ============================================================================

// subjectEntry 已注册的观察者；补发期间到达的通知暂存在pending中
type subjectEntry struct {
	subscriber *Subscriber
	replaying  bool
	pending    []Item
}

// Subject 发布主题，只向当前订阅者广播之后的通知
//
// 观察者按注册顺序接收通知；终止后新的订阅者只收到保存下来的终止通知。
// 回调总是在锁外调用。
type Subject struct {
	mu       sync.Mutex
	entries  []*subjectEntry
	terminal *Item
	strategy subjectStrategy
}

// NewSubject 创建发布主题
func NewSubject() *Subject {
	return &Subject{}
}

// NewPublishSubject 与NewSubject相同
func NewPublishSubject() *Subject {
	return NewSubject()
}

func newSubjectWithStrategy(strategy subjectStrategy) *Subject {
	return &Subject{strategy: strategy}
}

// Subscribe 注册观察者
func (subj *Subject) Subscribe(observer Observer) Subscription {
	subscriber := toSubscriber(observer)
	if subscriber.IsUnsubscribed() {
		return subscriber
	}

	subj.mu.Lock()
	var replay []interface{}
	if subj.strategy != nil {
		replay = subj.strategy.replay(subj.terminal)
	}

	if subj.terminal != nil {
		terminal := *subj.terminal
		subj.mu.Unlock()

		for _, value := range replay {
			subscriber.OnNext(value)
		}
		terminal.Accept(subscriber)
		return subscriber
	}

	entry := &subjectEntry{subscriber: subscriber, replaying: len(replay) > 0}
	subj.entries = append(subj.entries, entry)
	subj.mu.Unlock()

	subscriber.AddTeardown(func() {
		subj.remove(entry)
	})

	if entry.replaying {
		for _, value := range replay {
			subscriber.OnNext(value)
		}
		subj.drainPending(entry)
	}

	return subscriber
}

// drainPending 补发结束后投递期间积压的通知
func (subj *Subject) drainPending(entry *subjectEntry) {
	for {
		subj.mu.Lock()
		if len(entry.pending) == 0 {
			entry.replaying = false
			subj.mu.Unlock()
			return
		}
		items := entry.pending
		entry.pending = nil
		subj.mu.Unlock()

		for _, item := range items {
			item.Accept(entry.subscriber)
		}
	}
}

// SubscribeWithCallbacks 使用回调函数订阅
func (subj *Subject) SubscribeWithCallbacks(onNext OnNext, onError OnError, onComplete OnComplete) Subscription {
	return subj.Subscribe(NewObserver(onNext, onError, onComplete))
}

// Pipe 从左到右依次应用操作符
func (subj *Subject) Pipe(operators ...Operator) Observable {
	return Pipe(subj, operators...)
}

// AsObservable 隐藏Observer一侧，只暴露订阅能力
func (subj *Subject) AsObservable() Observable {
	return NewObservable(func(s *Subscriber) error {
		subj.Subscribe(s)
		return nil
	})
}

// OnNext 向所有观察者广播值，终止后忽略
func (subj *Subject) OnNext(value interface{}) {
	subj.mu.Lock()
	if subj.terminal != nil {
		subj.mu.Unlock()
		return
	}
	if subj.strategy != nil && !subj.strategy.onNext(value) {
		subj.mu.Unlock()
		return
	}
	targets := subj.collectLocked(nil, CreateItem(value))
	subj.mu.Unlock()

	for _, target := range targets {
		target.OnNext(value)
	}
}

// OnError 广播错误并进入终止状态，只生效一次
func (subj *Subject) OnError(err error) {
	subj.stop(CreateErrorItem(err))
}

// OnComplete 广播完成并进入终止状态，只生效一次
func (subj *Subject) OnComplete() {
	subj.stop(CreateCompleteItem())
}

func (subj *Subject) stop(terminal Item) {
	subj.mu.Lock()
	if subj.terminal != nil {
		subj.mu.Unlock()
		return
	}
	subj.terminal = &terminal

	var extra []interface{}
	if terminal.IsComplete() && subj.strategy != nil {
		extra = subj.strategy.onComplete()
	}
	targets := subj.collectLocked(extra, terminal)
	subj.entries = nil
	subj.mu.Unlock()

	for _, target := range targets {
		for _, value := range extra {
			target.OnNext(value)
		}
		terminal.Accept(target)
	}
}

// collectLocked 返回需要立即投递的观察者；正在补发的观察者把通知放入积压队列
func (subj *Subject) collectLocked(extra []interface{}, item Item) []*Subscriber {
	targets := make([]*Subscriber, 0, len(subj.entries))
	for _, entry := range subj.entries {
		if entry.replaying {
			for _, value := range extra {
				entry.pending = append(entry.pending, CreateItem(value))
			}
			entry.pending = append(entry.pending, item)
			continue
		}
		targets = append(targets, entry.subscriber)
	}
	return targets
}

func (subj *Subject) remove(entry *subjectEntry) {
	subj.mu.Lock()
	defer subj.mu.Unlock()

	for i, e := range subj.entries {
		if e == entry {
			subj.entries = append(subj.entries[:i], subj.entries[i+1:]...)
			return
		}
	}
}

// IsStopped 是否已收到终止通知
func (subj *Subject) IsStopped() bool {
	subj.mu.Lock()
	defer subj.mu.Unlock()
	return subj.terminal != nil
}

// HasObservers 检查是否有观察者
func (subj *Subject) HasObservers() bool {
	return subj.ObserverCount() > 0
}

// ObserverCount 获取观察者数量
func (subj *Subject) ObserverCount() int {
	subj.mu.Lock()
	defer subj.mu.Unlock()
	return len(subj.entries)
}

// ============================================================================
// BehaviorSubject - 行为主题
// ============================================================================

type behaviorStrategy struct {
	current interface{}
}

func (b *behaviorStrategy) onNext(value interface{}) bool {
	b.current = value
	return true
}

func (b *behaviorStrategy) replay(terminal *Item) []interface{} {
	if terminal != nil {
		return nil
	}
	return []interface{}{b.current}
}

func (b *behaviorStrategy) onComplete() []interface{} { return nil }

// BehaviorSubject 行为主题，新订阅者先收到当前值
type BehaviorSubject struct {
	*Subject
	behavior *behaviorStrategy
}

// NewBehaviorSubject 创建以initialValue为当前值的行为主题
func NewBehaviorSubject(initialValue interface{}) *BehaviorSubject {
	behavior := &behaviorStrategy{current: initialValue}
	return &BehaviorSubject{
		Subject:  newSubjectWithStrategy(behavior),
		behavior: behavior,
	}
}

// Value 返回当前值
func (b *BehaviorSubject) Value() interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.behavior.current
}

// ============================================================================
// ReplaySubject - 重放主题
// ============================================================================

type replayRecord struct {
	value      interface{}
	recordedAt time.Time
}

type replayStrategy struct {
	bufferSize int
	window     time.Duration
	clock      Scheduler
	buffer     []replayRecord
}

func (r *replayStrategy) onNext(value interface{}) bool {
	r.buffer = append(r.buffer, replayRecord{value: value, recordedAt: r.clock.Now()})
	r.purge()
	return true
}

func (r *replayStrategy) replay(*Item) []interface{} {
	r.purge()
	values := make([]interface{}, len(r.buffer))
	for i, record := range r.buffer {
		values[i] = record.value
	}
	return values
}

func (r *replayStrategy) onComplete() []interface{} { return nil }

// purge 先按数量裁剪再按时间窗口裁剪
func (r *replayStrategy) purge() {
	if r.bufferSize > 0 && len(r.buffer) > r.bufferSize {
		r.buffer = append([]replayRecord(nil), r.buffer[len(r.buffer)-r.bufferSize:]...)
	}
	if r.window > 0 {
		now := r.clock.Now()
		cut := 0
		for cut < len(r.buffer) && now.Sub(r.buffer[cut].recordedAt) > r.window {
			cut++
		}
		if cut > 0 {
			r.buffer = append([]replayRecord(nil), r.buffer[cut:]...)
		}
	}
}

// ReplaySubject 重放主题，新订阅者先收到缓冲区中的值
//
// bufferSize<=0 表示不限数量，window<=0 表示不限时间；时钟默认 AsyncScheduler。
// 终止后订阅仍会先重放缓冲区，再收到终止通知。
type ReplaySubject struct {
	*Subject
	replayer *replayStrategy
}

// NewReplaySubject 创建重放主题
func NewReplaySubject(bufferSize int, window time.Duration, options ...Option) *ReplaySubject {
	config := newConfig(options...)
	replayer := &replayStrategy{
		bufferSize: bufferSize,
		window:     window,
		clock:      config.schedulerOr(AsyncScheduler),
	}
	return &ReplaySubject{
		Subject:  newSubjectWithStrategy(replayer),
		replayer: replayer,
	}
}

// BufferedValues 返回当前缓冲区中仍然有效的值
func (r *ReplaySubject) BufferedValues() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replayer.replay(nil)
}

// ============================================================================
// AsyncSubject - 异步主题
// ============================================================================

type asyncStrategy struct {
	last     interface{}
	hasValue bool
}

func (a *asyncStrategy) onNext(value interface{}) bool {
	a.last = value
	a.hasValue = true
	return false
}

func (a *asyncStrategy) replay(terminal *Item) []interface{} {
	if terminal != nil && terminal.IsComplete() && a.hasValue {
		return []interface{}{a.last}
	}
	return nil
}

func (a *asyncStrategy) onComplete() []interface{} {
	if a.hasValue {
		return []interface{}{a.last}
	}
	return nil
}

// AsyncSubject 异步主题，只在完成时发射最后一个值
type AsyncSubject struct {
	*Subject
}

// NewAsyncSubject 创建异步主题
func NewAsyncSubject() *AsyncSubject {
	return &AsyncSubject{Subject: newSubjectWithStrategy(&asyncStrategy{})}
}
