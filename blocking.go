// Blocking operators for RxStream
// 阻塞转换：把异步的Observable收敛为普通返回值，供命令行、示例和测试使用
package rxstream

import (
	"context"
	"sync"
)

// ============================================================================
// 阻塞操作符实现
// ============================================================================

// waitTerminal 订阅source，阻塞到终止通知或ctx取消，返回前取消订阅
func waitTerminal(ctx context.Context, source Observable, onNext OnNext) error {
	done := make(chan error, 1)

	subscription := source.Subscribe(NewObserver(
		onNext,
		func(err error) { done <- err },
		func() { done <- nil },
	))
	defer subscription.Unsubscribe()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForEach 阻塞地对每个值调用onNext，直到序列终止
// 序列以错误结束时返回该错误；ctx取消时返回ctx.Err()
func ForEach(ctx context.Context, source Observable, onNext OnNext) error {
	return waitTerminal(ctx, source, onNext)
}

// ToSlice 阻塞收集所有值到切片
func ToSlice(ctx context.Context, source Observable) ([]interface{}, error) {
	var (
		mu     sync.Mutex
		values []interface{}
	)

	err := waitTerminal(ctx, source, func(value interface{}) {
		mu.Lock()
		values = append(values, value)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return values, nil
}

// FirstValue 阻塞获取第一个值，拿到后立即取消上游
// 空序列返回 ErrEmpty
func FirstValue(ctx context.Context, source Observable) (interface{}, error) {
	var (
		mu    sync.Mutex
		first interface{}
	)

	err := waitTerminal(ctx, source.Pipe(First()), func(value interface{}) {
		mu.Lock()
		first = value
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return first, nil
}

// LastValue 阻塞获取最后一个值
func LastValue(ctx context.Context, source Observable) (interface{}, error) {
	var (
		mu       sync.Mutex
		last     interface{}
		hasValue bool
	)

	err := waitTerminal(ctx, source, func(value interface{}) {
		mu.Lock()
		last, hasValue = value, true
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if !hasValue {
		return nil, ErrEmpty
	}
	return last, nil
}
