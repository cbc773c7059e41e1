package rxtest

import (
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xinjiayu/rxstream"
)

// ============================================================================
// TestScheduler
// ============================================================================

// AssertFunc 比较实际与期望的时间线，不相等时向测试框架报告
type AssertFunc func(actual, expected interface{})

// TestScheduler 以帧为单位驱动虚拟时间的测试调度器，一帧为 FrameDuration
type TestScheduler struct {
	*rxstream.VirtualTimeScheduler

	assert AssertFunc

	mu         sync.Mutex
	flushTests []*flushTest
	hot        []*HotObservable
}

// flushTest 一个等待Flush后断言的期望
type flushTest struct {
	ready  bool
	actual func() interface{}
	expect interface{}
}

// NewTestScheduler 创建测试调度器
func NewTestScheduler(assertFn AssertFunc) *TestScheduler {
	return &TestScheduler{
		VirtualTimeScheduler: rxstream.NewVirtualTimeScheduler(),
		assert:               assertFn,
	}
}

// New 创建用testify的 assert.Equal 报告差异的测试调度器
func New(t assert.TestingT) *TestScheduler {
	return NewTestScheduler(func(actual, expected interface{}) {
		if h, ok := t.(interface{ Helper() }); ok {
			h.Helper()
		}
		assert.Equal(t, expected, actual)
	})
}

// Frame 返回当前帧
func (s *TestScheduler) Frame() int64 {
	return int64(s.Elapsed() / FrameDuration)
}

// SetMaxFrames 限制Flush推进的帧数，0表示不限制
func (s *TestScheduler) SetMaxFrames(frames int64) {
	s.SetMaxTime(time.Duration(frames) * FrameDuration)
}

func (s *TestScheduler) scheduleAtFrame(frame int64, action func()) rxstream.Subscription {
	delay := time.Duration(frame-s.Frame()) * FrameDuration
	return s.ScheduleWithDelay(action, delay)
}

// Run 用绑定到本调度器的辅助函数执行callback，然后Flush并断言所有期望
//
// 每次Run都从第0帧的新虚拟时钟开始，SetMaxFrames 的限制保留。
func (s *TestScheduler) Run(callback func(h *Helpers)) {
	s.reset()
	callback(&Helpers{scheduler: s})
	s.Flush()
	s.dropUnresolved()
}

// reset 换上新的虚拟时钟并清空上一次运行留下的热流和期望
func (s *TestScheduler) reset() {
	fresh := rxstream.NewVirtualTimeScheduler()
	fresh.SetMaxTime(s.MaxTime())

	s.mu.Lock()
	s.VirtualTimeScheduler = fresh
	s.hot = nil
	s.flushTests = nil
	s.mu.Unlock()
}

// dropUnresolved 丢弃没有调用 ToBe 的期望
func (s *TestScheduler) dropUnresolved() {
	s.mu.Lock()
	dropped := len(s.flushTests)
	s.flushTests = nil
	s.mu.Unlock()

	if dropped > 0 {
		rxstream.Logger().Warn("expectation without ToBe dropped", "count", dropped)
	}
}

// Flush 启动热流、推进虚拟时间直到没有任务，然后断言已就绪的期望
func (s *TestScheduler) Flush() {
	s.mu.Lock()
	hot := append([]*HotObservable(nil), s.hot...)
	s.mu.Unlock()

	for _, h := range hot {
		h.setup()
	}

	s.VirtualTimeScheduler.Flush()

	s.mu.Lock()
	tests := s.flushTests
	s.flushTests = nil
	var pending, ready []*flushTest
	for _, test := range tests {
		if test.ready {
			ready = append(ready, test)
		} else {
			pending = append(pending, test)
		}
	}
	s.flushTests = pending
	s.mu.Unlock()

	for _, test := range ready {
		s.assert(test.actual(), test.expect)
	}
}

func (s *TestScheduler) addFlushTest(test *flushTest) *flushTest {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushTests = append(s.flushTests, test)
	return test
}

func (s *TestScheduler) resolveFlushTest(test *flushTest, expect interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	test.expect = expect
	test.ready = true
}

// ============================================================================
// 冷流与热流
// ============================================================================

// MarbleOption 冷热流和期望的弹珠选项
type MarbleOption func(*marbleOptions)

type marbleOptions struct {
	values     map[string]interface{}
	errorValue error
}

// WithValues 指定字符到值的映射
func WithValues(values map[string]interface{}) MarbleOption {
	return func(o *marbleOptions) {
		o.values = values
	}
}

// WithError 指定 '#' 代表的错误
func WithError(err error) MarbleOption {
	return func(o *marbleOptions) {
		o.errorValue = err
	}
}

func applyMarbleOptions(options []MarbleOption) marbleOptions {
	var o marbleOptions
	for _, opt := range options {
		opt(&o)
	}
	return o
}

// deliver 把时间线消息投递给订阅者
func deliver(s *rxstream.Subscriber, msg TestMessage, errorValue error) {
	switch msg.Kind {
	case rxstream.KindNext:
		s.OnNext(msg.Value)
	case rxstream.KindError:
		if errorValue == nil {
			errorValue = errors.New(msg.Error)
		}
		s.OnError(errorValue)
	case rxstream.KindComplete:
		s.OnComplete()
	}
}

// subscriptionRecorder 记录订阅起止帧
type subscriptionRecorder struct {
	mu   sync.Mutex
	logs []SubscriptionLog
}

func (r *subscriptionRecorder) subscribed(frame int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, SubscriptionLog{Subscribed: frame, Unsubscribed: Infinity})
	return len(r.logs) - 1
}

func (r *subscriptionRecorder) unsubscribed(index int, frame int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[index].Unsubscribed = frame
}

// Subscriptions 返回到目前为止记录的订阅
func (r *subscriptionRecorder) Subscriptions() []SubscriptionLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SubscriptionLog(nil), r.logs...)
}

// ColdObservable 冷流：每次订阅都从零开始播放时间线
type ColdObservable struct {
	rxstream.Observable
	subscriptionRecorder

	Messages   []TestMessage
	errorValue error
}

func newColdObservable(scheduler *TestScheduler, messages []TestMessage, errorValue error) *ColdObservable {
	cold := &ColdObservable{Messages: messages, errorValue: errorValue}
	cold.Observable = rxstream.NewObservable(func(s *rxstream.Subscriber) error {
		index := cold.subscribed(scheduler.Frame())
		s.AddTeardown(func() {
			cold.unsubscribed(index, scheduler.Frame())
		})

		for _, msg := range cold.Messages {
			msg := msg
			s.Add(scheduler.ScheduleWithDelay(func() {
				deliver(s, msg, cold.errorValue)
			}, time.Duration(msg.Frame)*FrameDuration))
		}
		return nil
	})
	return cold
}

// HotObservable 热流：时间线在共享的虚拟时钟上播放，晚到的订阅者错过之前的事件
type HotObservable struct {
	rxstream.Observable
	subscriptionRecorder

	Messages   []TestMessage
	errorValue error
	scheduler  *TestScheduler
	subject    *rxstream.Subject
	started    bool
}

func newHotObservable(scheduler *TestScheduler, messages []TestMessage, errorValue error) *HotObservable {
	hot := &HotObservable{
		Messages:   messages,
		errorValue: errorValue,
		scheduler:  scheduler,
		subject:    rxstream.NewSubject(),
	}
	hot.Observable = rxstream.NewObservable(func(s *rxstream.Subscriber) error {
		index := hot.subscribed(scheduler.Frame())
		s.AddTeardown(func() {
			hot.unsubscribed(index, scheduler.Frame())
		})
		inner := rxstream.NewSubscriber(s)
		s.Add(inner)
		hot.subject.Subscribe(inner)
		return nil
	})
	return hot
}

// setup 把时间线排入调度器，负帧的事件发生在订阅点之前而被丢弃
func (h *HotObservable) setup() {
	if h.started {
		return
	}
	h.started = true

	for _, msg := range h.Messages {
		if msg.Frame < 0 {
			continue
		}
		msg := msg
		h.scheduler.scheduleAtFrame(msg.Frame, func() {
			switch msg.Kind {
			case rxstream.KindNext:
				h.subject.OnNext(msg.Value)
			case rxstream.KindError:
				err := h.errorValue
				if err == nil {
					err = errors.New(msg.Error)
				}
				h.subject.OnError(err)
			case rxstream.KindComplete:
				h.subject.OnComplete()
			}
		})
	}
}

// ============================================================================
// Helpers
// ============================================================================

// Helpers Run 回调中使用的辅助函数，都绑定到同一个调度器
type Helpers struct {
	scheduler *TestScheduler
}

// Scheduler 返回驱动本次运行的调度器
func (h *Helpers) Scheduler() *TestScheduler {
	return h.scheduler
}

// WithScheduler 返回把操作符绑定到本次运行的调度器选项
func (h *Helpers) WithScheduler() rxstream.Option {
	return rxstream.WithScheduler(h.scheduler)
}

// Time 返回时间推进弹珠图表示的虚拟时长，例如 "---|" 为3帧
func (h *Helpers) Time(marbles string) time.Duration {
	messages := mustParseMarbles(marbles, nil, nil, false)
	for _, msg := range messages {
		if msg.Kind == rxstream.KindComplete {
			return time.Duration(msg.Frame) * FrameDuration
		}
	}
	panic(&MarbleError{Marbles: marbles, Pos: len(marbles), Msg: "time marbles must end with '|'"})
}

// Cold 创建冷流，弹珠图中不能有 '^'
func (h *Helpers) Cold(marbles string, options ...MarbleOption) *ColdObservable {
	for i, c := range marbles {
		if c == '^' {
			panic(&MarbleError{Marbles: marbles, Pos: i, Msg: "cold observable cannot have subscription offset '^'"})
		}
	}
	o := applyMarbleOptions(options)
	messages := mustParseMarbles(marbles, o.values, o.errorValue, false)

	return newColdObservable(h.scheduler, messages, o.errorValue)
}

// Hot 创建热流，'^' 标记零帧
func (h *Helpers) Hot(marbles string, options ...MarbleOption) *HotObservable {
	o := applyMarbleOptions(options)
	messages := mustParseMarbles(marbles, o.values, o.errorValue, false)

	hot := newHotObservable(h.scheduler, messages, o.errorValue)
	h.scheduler.mu.Lock()
	h.scheduler.hot = append(h.scheduler.hot, hot)
	h.scheduler.mu.Unlock()
	return hot
}

// Flush 立即推进虚拟时间并断言已就绪的期望
func (h *Helpers) Flush() {
	h.scheduler.Flush()
}

// ============================================================================
// 期望
// ============================================================================

// ObservableExpectation ExpectObservable 的结果
type ObservableExpectation struct {
	scheduler *TestScheduler
	test      *flushTest
}

// ExpectObservable 在订阅弹珠图指定的帧订阅obs并记录它的时间线
//
// 缺省在第0帧订阅且不取消。内层Observable值按其发射帧展开为相对时间线。
func (h *Helpers) ExpectObservable(obs rxstream.Observable, subscriptionMarbles ...string) *ObservableExpectation {
	s := h.scheduler

	subscribeFrame, unsubscribeFrame := int64(0), Infinity
	if len(subscriptionMarbles) > 0 && subscriptionMarbles[0] != "" {
		log := mustParseSubscriptionMarbles(subscriptionMarbles[0])
		if log.Subscribed != Infinity {
			subscribeFrame = log.Subscribed
		}
		unsubscribeFrame = log.Unsubscribed
	}

	var (
		mu     sync.Mutex
		actual = []TestMessage{}
	)
	record := func(msg TestMessage) {
		mu.Lock()
		actual = append(actual, msg)
		mu.Unlock()
	}

	var subscription rxstream.Subscription
	s.scheduleAtFrame(subscribeFrame, func() {
		subscription = obs.Subscribe(rxstream.ItemObserver(func(item rxstream.Item) {
			frame := s.Frame()
			switch item.Kind {
			case rxstream.KindNext:
				value := item.Value
				if inner, ok := value.(rxstream.Observable); ok {
					value = materializeInner(s, inner, frame)
				}
				record(Next(frame, value))
			case rxstream.KindError:
				record(Err(frame, item.Error))
			case rxstream.KindComplete:
				record(Complete(frame))
			}
		}))
	})

	if unsubscribeFrame != Infinity {
		s.scheduleAtFrame(unsubscribeFrame, func() {
			if subscription != nil {
				subscription.Unsubscribe()
			}
		})
	}

	test := s.addFlushTest(&flushTest{
		actual: func() interface{} {
			mu.Lock()
			defer mu.Unlock()
			return resolveTimeline(actual)
		},
	})
	return &ObservableExpectation{scheduler: s, test: test}
}

// materializeInner 订阅内层流，记录相对于outerFrame的时间线
//
// 时间线在Flush过程中持续增长，断言前由 resolveTimeline 取出最终内容。
func materializeInner(s *TestScheduler, inner rxstream.Observable, outerFrame int64) *[]TestMessage {
	messages := &[]TestMessage{}
	inner.Subscribe(rxstream.ItemObserver(func(item rxstream.Item) {
		frame := s.Frame() - outerFrame
		switch item.Kind {
		case rxstream.KindNext:
			*messages = append(*messages, Next(frame, item.Value))
		case rxstream.KindError:
			*messages = append(*messages, Err(frame, item.Error))
		case rxstream.KindComplete:
			*messages = append(*messages, Complete(frame))
		}
	}))
	return messages
}

// resolveTimeline 复制时间线，并把内层流的记录替换为其最终内容
func resolveTimeline(messages []TestMessage) []TestMessage {
	resolved := make([]TestMessage, len(messages))
	for i, msg := range messages {
		if inner, ok := msg.Value.(*[]TestMessage); ok {
			msg.Value = append([]TestMessage{}, (*inner)...)
		}
		resolved[i] = msg
	}
	return resolved
}

// ToBe 登记期望的时间线
func (e *ObservableExpectation) ToBe(marbles string, options ...MarbleOption) {
	o := applyMarbleOptions(options)
	expected := mustParseMarbles(marbles, o.values, o.errorValue, true)
	if expected == nil {
		expected = []TestMessage{}
	}
	e.scheduler.resolveFlushTest(e.test, expected)
}

// ToEqual 登记期望的消息列表
func (e *ObservableExpectation) ToEqual(expected []TestMessage) {
	if expected == nil {
		expected = []TestMessage{}
	}
	e.scheduler.resolveFlushTest(e.test, expected)
}

// SubscriptionSource 记录订阅起止帧的流，ColdObservable 和 HotObservable 都满足
type SubscriptionSource interface {
	Subscriptions() []SubscriptionLog
}

// SubscriptionExpectation ExpectSubscriptions 的结果
type SubscriptionExpectation struct {
	scheduler *TestScheduler
	test      *flushTest
}

// ExpectSubscriptions 在Flush后比较source记录的订阅
func (h *Helpers) ExpectSubscriptions(source SubscriptionSource) *SubscriptionExpectation {
	test := h.scheduler.addFlushTest(&flushTest{
		actual: func() interface{} {
			logs := source.Subscriptions()
			if logs == nil {
				logs = []SubscriptionLog{}
			}
			return logs
		},
	})
	return &SubscriptionExpectation{scheduler: h.scheduler, test: test}
}

// ToBe 登记期望的订阅弹珠图，每个参数对应一次订阅
func (e *SubscriptionExpectation) ToBe(marbles ...string) {
	expected := make([]SubscriptionLog, 0, len(marbles))
	for _, m := range marbles {
		expected = append(expected, mustParseSubscriptionMarbles(m))
	}
	e.scheduler.resolveFlushTest(e.test, expected)
}
