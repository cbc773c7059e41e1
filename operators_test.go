// Operator tests for RxStream
// 基础操作符测试
package rxstream

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// 转换操作符测试
// ============================================================================

func TestMap(t *testing.T) {
	t.Run("转换每个值", func(t *testing.T) {
		rec := newRecorder()
		Of(1, 2, 3).Pipe(Map(func(v interface{}) (interface{}, error) {
			return fmt.Sprintf("#%d", v), nil
		})).Subscribe(rec.observer())

		assert.Equal(t, []interface{}{"#1", "#2", "#3"}, rec.values())
		assert.True(t, rec.completed())
	})

	t.Run("转换错误终止流并取消上游", func(t *testing.T) {
		boom := errors.New("boom")
		src := newCountingSource(Of(1, 2, 3))
		rec := newRecorder()

		src.observable().Pipe(Map(func(v interface{}) (interface{}, error) {
			if v.(int) == 2 {
				return nil, boom
			}
			return v, nil
		})).Subscribe(rec.observer())

		assert.Equal(t, []interface{}{1}, rec.values())
		assert.ErrorIs(t, rec.err(), boom)

		subscribed, unsubscribed := src.counts()
		assert.Equal(t, 1, subscribed)
		assert.Equal(t, 1, unsubscribed)
	})

	t.Run("转换函数panic转为PanicError", func(t *testing.T) {
		rec := newRecorder()
		Of(1).Pipe(Map(func(v interface{}) (interface{}, error) {
			panic("bad transform")
		})).Subscribe(rec.observer())

		var panicErr *PanicError
		require.ErrorAs(t, rec.err(), &panicErr)
		assert.Equal(t, "bad transform", panicErr.Value)
	})

	t.Run("MapTo替换为常量", func(t *testing.T) {
		rec := newRecorder()
		Of(1, 2).Pipe(MapTo("x")).Subscribe(rec.observer())
		assert.Equal(t, []interface{}{"x", "x"}, rec.values())
	})
}

// ============================================================================
// 过滤操作符测试
// ============================================================================

func TestFilter(t *testing.T) {
	t.Run("只转发满足条件的值", func(t *testing.T) {
		rec := newRecorder()
		Of(1, 2, 3, 4, 5).Pipe(Filter(func(v interface{}) bool {
			return v.(int)%2 == 1
		})).Subscribe(rec.observer())

		assert.Equal(t, []interface{}{1, 3, 5}, rec.values())
		assert.True(t, rec.completed())
	})

	t.Run("谓词panic转为错误", func(t *testing.T) {
		rec := newRecorder()
		Of("a").Pipe(Filter(func(v interface{}) bool {
			return v.(int) > 0
		})).Subscribe(rec.observer())

		var panicErr *PanicError
		assert.ErrorAs(t, rec.err(), &panicErr)
	})
}

func TestTake(t *testing.T) {
	t.Run("取前N个值后完成并停止上游", func(t *testing.T) {
		produced := 0
		rec := newRecorder()
		Of(1, 2, 3, 4).Pipe(
			Tap(func(interface{}) { produced++ }, nil, nil),
			Take(2),
		).Subscribe(rec.observer())

		assert.Equal(t, []interface{}{1, 2}, rec.values())
		assert.True(t, rec.completed())
		assert.Equal(t, 2, produced)
	})

	t.Run("上游不足N个时随上游完成", func(t *testing.T) {
		rec := newRecorder()
		Of(1).Pipe(Take(5)).Subscribe(rec.observer())
		assert.Equal(t, []interface{}{1}, rec.values())
		assert.True(t, rec.completed())
	})

	t.Run("计数不大于0时不订阅上游", func(t *testing.T) {
		for _, count := range []int{0, -1} {
			src := newCountingSource(Of(1, 2))
			rec := newRecorder()
			src.observable().Pipe(Take(count)).Subscribe(rec.observer())

			subscribed, _ := src.counts()
			assert.Equal(t, 0, subscribed, "count=%d", count)
			assert.Empty(t, rec.values())
			assert.True(t, rec.completed())
		}
	})
}

func TestFirst(t *testing.T) {
	t.Run("第一个值之后完成", func(t *testing.T) {
		src := newCountingSource(Of("a", "b"))
		rec := newRecorder()
		src.observable().Pipe(First()).Subscribe(rec.observer())

		assert.Equal(t, []interface{}{"a"}, rec.values())
		assert.True(t, rec.completed())

		_, unsubscribed := src.counts()
		assert.Equal(t, 1, unsubscribed)
	})

	t.Run("空序列发出ErrEmpty", func(t *testing.T) {
		rec := newRecorder()
		Empty().Pipe(First()).Subscribe(rec.observer())
		assert.ErrorIs(t, rec.err(), ErrEmpty)
	})

	t.Run("上游错误原样转发", func(t *testing.T) {
		boom := errors.New("boom")
		rec := newRecorder()
		Throw(boom).Pipe(First()).Subscribe(rec.observer())
		assert.Equal(t, boom, rec.err())
	})
}

// ============================================================================
// 累加操作符测试
// ============================================================================

func TestScan(t *testing.T) {
	sum := func(acc, v interface{}) (interface{}, error) {
		return acc.(int) + v.(int), nil
	}

	t.Run("发射每一步的累加结果", func(t *testing.T) {
		rec := newRecorder()
		Of(1, 2, 3).Pipe(Scan(sum, 10)).Subscribe(rec.observer())
		assert.Equal(t, []interface{}{11, 13, 16}, rec.values())
	})

	t.Run("每次订阅从种子重新开始", func(t *testing.T) {
		obs := Of(1, 2).Pipe(Scan(sum, 0))
		first, second := newRecorder(), newRecorder()
		obs.Subscribe(first.observer())
		obs.Subscribe(second.observer())

		assert.Equal(t, []interface{}{1, 3}, first.values())
		assert.Equal(t, []interface{}{1, 3}, second.values())
	})

	t.Run("累加错误终止流", func(t *testing.T) {
		boom := errors.New("overflow")
		rec := newRecorder()
		Of(1, 2, 3).Pipe(Scan(func(acc, v interface{}) (interface{}, error) {
			if v.(int) == 3 {
				return nil, boom
			}
			return acc.(int) + v.(int), nil
		}, 0)).Subscribe(rec.observer())

		assert.Equal(t, []interface{}{1, 3}, rec.values())
		assert.Equal(t, boom, rec.err())
	})
}

// ============================================================================
// 副作用操作符测试
// ============================================================================

func TestTap(t *testing.T) {
	t.Run("副作用在转发之前执行", func(t *testing.T) {
		var log []string
		Of(1, 2).Pipe(Tap(
			func(v interface{}) { log = append(log, fmt.Sprintf("tap %v", v)) },
			nil,
			func() { log = append(log, "tap complete") },
		)).SubscribeWithCallbacks(
			func(v interface{}) { log = append(log, fmt.Sprintf("next %v", v)) },
			nil,
			func() { log = append(log, "complete") },
		)

		assert.Equal(t, []string{
			"tap 1", "next 1",
			"tap 2", "next 2",
			"tap complete", "complete",
		}, log)
	})

	t.Run("错误回调看到上游错误", func(t *testing.T) {
		boom := errors.New("boom")
		var seen error
		rec := newRecorder()
		Throw(boom).Pipe(Tap(nil, func(err error) { seen = err }, nil)).Subscribe(rec.observer())

		assert.Equal(t, boom, seen)
		assert.Equal(t, boom, rec.err())
	})

	t.Run("回调panic转为错误", func(t *testing.T) {
		rec := newRecorder()
		Of(1, 2).Pipe(Tap(func(interface{}) { panic("tap") }, nil, nil)).Subscribe(rec.observer())

		assert.Empty(t, rec.values())
		var panicErr *PanicError
		assert.ErrorAs(t, rec.err(), &panicErr)
	})
}

// ============================================================================
// 调度操作符测试
// ============================================================================

func TestObserveOn(t *testing.T) {
	vts := NewVirtualTimeScheduler()
	rec := newRecorder()

	Of(1, 2, 3).Pipe(ObserveOn(vts)).Subscribe(rec.observer())
	assert.Empty(t, rec.snapshot())
	assert.Equal(t, 4, vts.Pending())

	vts.Flush()
	assert.Equal(t, []interface{}{1, 2, 3}, rec.values())
	assert.True(t, rec.completed())
}

func TestSubscribeOn(t *testing.T) {
	t.Run("订阅延迟到调度器执行", func(t *testing.T) {
		vts := NewVirtualTimeScheduler()
		src := newCountingSource(Of("a"))
		rec := newRecorder()

		src.observable().Pipe(SubscribeOn(vts)).Subscribe(rec.observer())
		subscribed, _ := src.counts()
		assert.Equal(t, 0, subscribed)

		vts.Flush()
		subscribed, _ = src.counts()
		assert.Equal(t, 1, subscribed)
		assert.Equal(t, []interface{}{"a"}, rec.values())
		assert.True(t, rec.completed())
	})

	t.Run("执行前取消订阅则从不订阅上游", func(t *testing.T) {
		vts := NewVirtualTimeScheduler()
		src := newCountingSource(Of("a"))

		sub := src.observable().Pipe(SubscribeOn(vts)).Subscribe(NewObserver(nil, nil, nil))
		sub.Unsubscribe()
		vts.Flush()

		subscribed, _ := src.counts()
		assert.Equal(t, 0, subscribed)
		assert.Equal(t, 0, vts.Pending())
	})
}
