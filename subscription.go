// Subscription implementations for RxStream
// 订阅的所有权树：子订阅通过句柄引用，释放时依次执行所有清理动作
package rxstream

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// ============================================================================
// CompositeSubscription 组合订阅
// ============================================================================

// Handle 子订阅或清理动作在父订阅中的句柄
type Handle uint64

// finalizer 一个待执行的清理单元：子订阅或清理函数二选一
type finalizer struct {
	handle   Handle
	child    Subscription
	teardown func()
}

// CompositeSubscription 组合订阅，独占地拥有其子订阅和清理动作
//
// 父订阅只保存子订阅的句柄，子订阅不持有指向父订阅的引用。
type CompositeSubscription struct {
	mu         sync.Mutex
	closed     int32
	nextHandle Handle
	finalizers []finalizer
	err        error
}

// NewCompositeSubscription 创建组合订阅，可附带初始的清理动作
func NewCompositeSubscription(teardowns ...func()) *CompositeSubscription {
	s := &CompositeSubscription{}
	for _, teardown := range teardowns {
		s.AddTeardown(teardown)
	}
	return s
}

// NewSubscription 创建只包含一个清理动作的订阅
func NewSubscription(teardown func()) *CompositeSubscription {
	return NewCompositeSubscription(teardown)
}

// Add 添加子订阅并返回其句柄
//
// 如果本订阅已经释放，子订阅会被立即释放并返回零句柄。
func (s *CompositeSubscription) Add(child Subscription) Handle {
	if child == nil || child == Subscription(s) {
		return 0
	}

	s.mu.Lock()
	if s.IsUnsubscribed() {
		s.mu.Unlock()
		child.Unsubscribe()
		return 0
	}
	s.nextHandle++
	handle := s.nextHandle
	s.finalizers = append(s.finalizers, finalizer{handle: handle, child: child})
	s.mu.Unlock()

	return handle
}

// AddTeardown 添加清理动作并返回其句柄；已释放时立即执行
func (s *CompositeSubscription) AddTeardown(teardown func()) Handle {
	if teardown == nil {
		return 0
	}

	s.mu.Lock()
	if s.IsUnsubscribed() {
		s.mu.Unlock()
		if err := SafeExecute(teardown); err != nil {
			logger().Warn("teardown failed on closed subscription", "error", err)
		}
		return 0
	}
	s.nextHandle++
	handle := s.nextHandle
	s.finalizers = append(s.finalizers, finalizer{handle: handle, teardown: teardown})
	s.mu.Unlock()

	return handle
}

// Remove 按句柄摘除子订阅或清理动作，但不执行它
func (s *CompositeSubscription) Remove(handle Handle) bool {
	if handle == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.finalizers {
		if f.handle == handle {
			s.finalizers = append(s.finalizers[:i], s.finalizers[i+1:]...)
			return true
		}
	}
	return false
}

// Len 返回尚未释放的子订阅和清理动作的数量
func (s *CompositeSubscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finalizers)
}

// Unsubscribe 释放订阅
//
// 每个清理动作按添加顺序恰好执行一次；某个动作panic不会阻止其余动作，
// 所有失败会汇总到 Err() 返回的 UnsubscriptionError 中。
func (s *CompositeSubscription) Unsubscribe() {
	s.mu.Lock()
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		s.mu.Unlock()
		return
	}
	finalizers := s.finalizers
	s.finalizers = nil
	s.mu.Unlock()

	var errs []error
	for _, f := range finalizers {
		var err error
		if f.teardown != nil {
			err = SafeExecute(f.teardown)
		} else {
			alreadyClosed := f.child.IsUnsubscribed()
			err = SafeExecute(f.child.Unsubscribe)
			if err == nil && !alreadyClosed {
				if composite, ok := f.child.(interface{ Err() error }); ok {
					err = composite.Err()
				}
			}
		}
		if err != nil {
			errs = append(errs, flattenUnsubscriptionError(err)...)
		}
	}

	if len(errs) > 0 {
		unsubErr := NewUnsubscriptionError(errs)
		s.mu.Lock()
		s.err = unsubErr
		s.mu.Unlock()
		logger().Warn("errors during unsubscription", "count", len(errs), "error", unsubErr)
	}
}

// IsUnsubscribed 检查是否已取消订阅
func (s *CompositeSubscription) IsUnsubscribed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

// Err 返回释放过程中汇总的错误
func (s *CompositeSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ============================================================================
// 空订阅
// ============================================================================

// emptySubscription 已关闭的空订阅
type emptySubscription struct{}

func (emptySubscription) Unsubscribe()         {}
func (emptySubscription) IsUnsubscribed() bool { return true }

// EmptySubscription 返回一个什么也不做的已关闭订阅
func EmptySubscription() Subscription {
	return emptySubscription{}
}

// ============================================================================
// UnsubscriptionError
// ============================================================================

// UnsubscriptionError 释放订阅时出现的一个或多个错误
type UnsubscriptionError struct {
	errors []error
}

// NewUnsubscriptionError 创建汇总错误
func NewUnsubscriptionError(errs []error) *UnsubscriptionError {
	return &UnsubscriptionError{errors: errs}
}

func (e *UnsubscriptionError) Error() string {
	if len(e.errors) == 1 {
		return fmt.Sprintf("1 error occurred during unsubscription: %v", e.errors[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred during unsubscription:", len(e.errors))
	for i, err := range e.errors {
		fmt.Fprintf(&b, "\n  %d) %v", i+1, err)
	}
	return b.String()
}

// Errors 返回所有错误
func (e *UnsubscriptionError) Errors() []error {
	return e.errors
}

// Unwrap 支持errors.Is/As遍历
func (e *UnsubscriptionError) Unwrap() []error {
	return e.errors
}

func flattenUnsubscriptionError(err error) []error {
	if unsubErr, ok := err.(*UnsubscriptionError); ok {
		return unsubErr.errors
	}
	return []error{err}
}
