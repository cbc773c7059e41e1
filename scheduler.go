// Scheduler implementations for RxStream
// 调度器实现：蹦床、队列、定时器和虚拟时间四种后端
package rxstream

import (
	"container/heap"
	"sync"
	"time"

	"github.com/petermattis/goid"
)

// ============================================================================
// 任务队列 - 按(到期时间, 入队序号)排序
// ============================================================================

// scheduledTask 一个已调度的任务
type scheduledTask struct {
	due    time.Time
	seq    uint64
	action func()
	index  int
}

// taskHeap 小顶堆，同一时刻的任务按入队顺序执行
type taskHeap []*scheduledTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	task := x.(*scheduledTask)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[:n-1]
	return task
}

// timedQueue 线程安全的定时任务队列
type timedQueue struct {
	mu    sync.Mutex
	tasks taskHeap
	seq   uint64
}

// push 入队，返回的订阅在任务执行前取消会把它移出队列
func (q *timedQueue) push(due time.Time, action func()) Subscription {
	q.mu.Lock()
	q.seq++
	task := &scheduledTask{due: due, seq: q.seq, action: action}
	heap.Push(&q.tasks, task)
	q.mu.Unlock()

	return NewSubscription(func() {
		q.remove(task)
	})
}

func (q *timedQueue) remove(task *scheduledTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task.index >= 0 && task.index < len(q.tasks) && q.tasks[task.index] == task {
		heap.Remove(&q.tasks, task.index)
	}
}

// popDue 弹出到期时间不晚于now的队首任务
func (q *timedQueue) popDue(now time.Time) *scheduledTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 || q.tasks[0].due.After(now) {
		return nil
	}
	return heap.Pop(&q.tasks).(*scheduledTask)
}

// nextDue 返回队首任务的到期时间
func (q *timedQueue) nextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return time.Time{}, false
	}
	return q.tasks[0].due, true
}

func (q *timedQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func clampDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	return delay
}

// runAction 在后台goroutine中执行任务，panic只记录日志
func runAction(action func()) {
	if err := SafeExecute(action); err != nil {
		logger().Error("scheduled action panicked", "error", err)
	}
}

// ============================================================================
// 立即调度器 - Trampoline
// ============================================================================

// trampolineScheduler 在当前goroutine中同步执行任务
//
// 任务执行期间在同一goroutine中发起的调度会排队，等当前任务返回后依次执行，
// 因此递归调度不会无限加深调用栈。
type trampolineScheduler struct {
	mu     sync.Mutex
	queues map[int64]*trampolineQueue
}

type trampolineQueue struct {
	tasks []*trampolineTask
}

type trampolineTask struct {
	action func()
	sub    *CompositeSubscription
}

// NewImmediateScheduler 创建蹦床式立即调度器
func NewImmediateScheduler() Scheduler {
	return &trampolineScheduler{
		queues: make(map[int64]*trampolineQueue),
	}
}

// Now 返回墙上时间
func (s *trampolineScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 立即执行任务；若当前goroutine正在执行蹦床任务则排队
func (s *trampolineScheduler) Schedule(action func()) Subscription {
	task := &trampolineTask{action: action, sub: NewCompositeSubscription()}
	gid := goid.Get()

	s.mu.Lock()
	if queue, running := s.queues[gid]; running {
		queue.tasks = append(queue.tasks, task)
		s.mu.Unlock()
		return task.sub
	}
	queue := &trampolineQueue{}
	s.queues[gid] = queue
	s.mu.Unlock()

	s.drain(gid, queue, task)
	return task.sub
}

// drain 依次执行队列中的任务，panic会传播给调用方，队列照常清理
//
// panic时排在后面的任务不再执行，它们的订阅被取消。
func (s *trampolineScheduler) drain(gid int64, queue *trampolineQueue, first *trampolineTask) {
	defer func() {
		s.mu.Lock()
		delete(s.queues, gid)
		dropped := queue.tasks
		queue.tasks = nil
		s.mu.Unlock()

		for _, task := range dropped {
			task.sub.Unsubscribe()
		}
	}()

	current := first
	for current != nil {
		if !current.sub.IsUnsubscribed() {
			current.action()
		}

		s.mu.Lock()
		if len(queue.tasks) == 0 {
			current = nil
		} else {
			current = queue.tasks[0]
			queue.tasks = queue.tasks[1:]
		}
		s.mu.Unlock()
	}
}

// ScheduleWithDelay 延迟执行任务；到期后在定时器goroutine上进入蹦床
func (s *trampolineScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	delay = clampDelay(delay)
	if delay == 0 {
		return s.Schedule(action)
	}

	sub := NewCompositeSubscription()
	timer := time.AfterFunc(delay, func() {
		if sub.IsUnsubscribed() {
			return
		}
		runAction(func() {
			sub.Add(s.Schedule(action))
		})
	})
	sub.AddTeardown(func() {
		timer.Stop()
	})

	return sub
}

// ============================================================================
// 队列调度器 - Queue Scheduler
// ============================================================================

// queueScheduler 由单个工作goroutine按(到期时间, 入队顺序)执行任务
type queueScheduler struct {
	queue   timedQueue
	mu      sync.Mutex
	running bool
	wake    chan struct{}
}

// NewQueueScheduler 创建队列调度器
func NewQueueScheduler() Scheduler {
	return &queueScheduler{
		wake: make(chan struct{}, 1),
	}
}

// Now 返回墙上时间
func (s *queueScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 把任务放入队列尾部
func (s *queueScheduler) Schedule(action func()) Subscription {
	return s.ScheduleWithDelay(action, 0)
}

// ScheduleWithDelay 延迟调度任务
func (s *queueScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	sub := s.queue.push(time.Now().Add(clampDelay(delay)), action)

	s.mu.Lock()
	if !s.running {
		s.running = true
		go s.processQueue()
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return sub
}

// processQueue 处理队列中的任务，队列为空时退出
func (s *queueScheduler) processQueue() {
	for {
		now := time.Now()
		if task := s.queue.popDue(now); task != nil {
			runAction(task.action)
			continue
		}

		due, ok := s.queue.nextDue()
		if !ok {
			s.mu.Lock()
			if s.queue.len() == 0 {
				s.running = false
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			continue
		}

		timer := time.NewTimer(due.Sub(now))
		select {
		case <-timer.C:
		case <-s.wake:
		}
		timer.Stop()
	}
}

// ============================================================================
// 定时器调度器 - Async Scheduler
// ============================================================================

// asyncScheduler 基于宿主定时器的调度器
//
// 只为最早到期的任务挂一个定时器；到期后按顺序执行所有已到期任务。
// 同一实例的任务串行执行，零延迟任务也总是在当前调用栈之外执行。
type asyncScheduler struct {
	queue   timedQueue
	mu      sync.Mutex
	timer   *time.Timer
	armedAt time.Time
	gen     uint64
	execMu  sync.Mutex
}

// NewAsyncScheduler 创建定时器调度器
func NewAsyncScheduler() Scheduler {
	return &asyncScheduler{}
}

// Now 返回墙上时间
func (s *asyncScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 在当前调用栈之外尽快执行任务
func (s *asyncScheduler) Schedule(action func()) Subscription {
	return s.ScheduleWithDelay(action, 0)
}

// ScheduleWithDelay 延迟调度任务
func (s *asyncScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	sub := s.queue.push(time.Now().Add(clampDelay(delay)), action)
	s.arm()
	return sub
}

// arm 按队首到期时间设置定时器
func (s *asyncScheduler) arm() {
	due, ok := s.queue.nextDue()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil && !s.armedAt.After(due) {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	s.gen++
	gen := s.gen
	s.armedAt = due
	s.timer = time.AfterFunc(time.Until(due), func() {
		s.fire(gen)
	})
}

func (s *asyncScheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.gen == gen {
		s.timer = nil
	}
	s.mu.Unlock()

	s.execMu.Lock()
	for {
		task := s.queue.popDue(time.Now())
		if task == nil {
			break
		}
		runAction(task.action)
	}
	s.execMu.Unlock()

	s.arm()
}

// ============================================================================
// 虚拟时间调度器 - Virtual Time Scheduler
// ============================================================================

// VirtualEpoch 虚拟时钟的零点
var VirtualEpoch = time.Unix(0, 0).UTC()

// VirtualTimeScheduler 虚拟时间调度器
//
// 时间只在 Flush / AdvanceTo / AdvanceBy 时前进；任务按到期时间执行，
// 同一时刻按调度顺序执行，全程同步且不等待真实时间。
type VirtualTimeScheduler struct {
	queue    timedQueue
	mu       sync.Mutex
	clock    time.Duration
	maxTime  time.Duration
	flushing bool
}

// NewVirtualTimeScheduler 创建虚拟时间调度器
func NewVirtualTimeScheduler() *VirtualTimeScheduler {
	return &VirtualTimeScheduler{}
}

// Now 返回虚拟时钟的当前时间
func (s *VirtualTimeScheduler) Now() time.Time {
	return VirtualEpoch.Add(s.Elapsed())
}

// Elapsed 返回自虚拟零点以来经过的时间
func (s *VirtualTimeScheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Schedule 在当前虚拟时刻调度任务
func (s *VirtualTimeScheduler) Schedule(action func()) Subscription {
	return s.ScheduleWithDelay(action, 0)
}

// ScheduleWithDelay 在当前虚拟时刻之后delay执行任务
func (s *VirtualTimeScheduler) ScheduleWithDelay(action func(), delay time.Duration) Subscription {
	return s.queue.push(s.Now().Add(clampDelay(delay)), action)
}

// SetMaxTime 限制Flush推进的最远时刻，0表示不限制
func (s *VirtualTimeScheduler) SetMaxTime(max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxTime = max
}

// MaxTime 返回 SetMaxTime 设置的上限
func (s *VirtualTimeScheduler) MaxTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxTime
}

// Pending 返回尚未执行的任务数量
func (s *VirtualTimeScheduler) Pending() int {
	return s.queue.len()
}

// Flush 执行所有挂起的任务，包括执行过程中新调度的任务
func (s *VirtualTimeScheduler) Flush() {
	s.mu.Lock()
	max := s.maxTime
	s.mu.Unlock()

	if max > 0 {
		s.runUntil(VirtualEpoch.Add(max), true)
		return
	}
	s.runUntil(time.Time{}, false)
}

// AdvanceTo 推进时钟到指定时刻，执行其间到期的任务
//
// 在任务内部调用时什么也不做，时钟由外层的 Flush / AdvanceTo 推进。
func (s *VirtualTimeScheduler) AdvanceTo(elapsed time.Duration) {
	if !s.runUntil(VirtualEpoch.Add(elapsed), true) {
		return
	}

	s.mu.Lock()
	if elapsed > s.clock {
		s.clock = elapsed
	}
	s.mu.Unlock()
}

// AdvanceBy 推进时钟一段时间
func (s *VirtualTimeScheduler) AdvanceBy(d time.Duration) {
	s.AdvanceTo(s.Elapsed() + clampDelay(d))
}

// runUntil 按顺序执行到期任务；重入调用直接返回false
func (s *VirtualTimeScheduler) runUntil(limit time.Time, bounded bool) bool {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return false
	}
	s.flushing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.flushing = false
		s.mu.Unlock()
	}()

	for {
		due, ok := s.queue.nextDue()
		if !ok || (bounded && due.After(limit)) {
			return true
		}

		task := s.queue.popDue(due)
		if task == nil {
			continue
		}

		s.mu.Lock()
		if elapsed := task.due.Sub(VirtualEpoch); elapsed > s.clock {
			s.clock = elapsed
		}
		s.mu.Unlock()

		task.action()
	}
}

// ============================================================================
// 默认调度器
// ============================================================================

// 默认调度器的选择遵循最小并发原则：
//
//	Of / FromSlice / Empty / Throw            不使用调度器，同步发射
//	Range                                      QueueScheduler
//	Interval / Timer / ThrottleTime / Delay    AsyncScheduler
//	ReplaySubject 的时钟                        AsyncScheduler
//
// 任何一处都可以通过 WithScheduler 显式替换。
var (
	// ImmediateScheduler 蹦床调度器实例
	ImmediateScheduler Scheduler = NewImmediateScheduler()

	// QueueScheduler 队列调度器实例
	QueueScheduler Scheduler = NewQueueScheduler()

	// AsyncScheduler 定时器调度器实例
	AsyncScheduler Scheduler = NewAsyncScheduler()
)
