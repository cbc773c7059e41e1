package rxstream_test

import (
	"errors"
	"testing"

	"github.com/xinjiayu/rxstream"
	"github.com/xinjiayu/rxstream/rxtest"
)

// ============================================================================
// ThrottleTime 测试
// ============================================================================

func TestThrottleTime(t *testing.T) {
	t.Run("窗口内的值被丢弃", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Cold("-a--b--c---|")
			subs := "^----------!"
			expected := "-a-----c---|"

			h.ExpectObservable(e1.Pipe(rxstream.ThrottleTime(h.Time("---|"), h.WithScheduler()))).ToBe(expected)
			h.ExpectSubscriptions(e1).ToBe(subs)
		})
	})

	t.Run("窗口结束后的值立即放行", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Cold("-a-b-c-d-|")
			expected := "-a---c---|"

			h.ExpectObservable(e1.Pipe(rxstream.ThrottleTime(h.Time("---|"), h.WithScheduler()))).ToBe(expected)
		})
	})

	t.Run("错误立即转发", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Cold("-a-b#")
			expected := "-a--#"

			h.ExpectObservable(e1.Pipe(rxstream.ThrottleTime(h.Time("-----|"), h.WithScheduler()))).ToBe(expected)
		})
	})

	t.Run("热流上的节流", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Hot("-a--^-b-c-d----e-|")
			subs := "^------------!"
			expected := "--b---d----e-|"

			h.ExpectObservable(e1.Pipe(rxstream.ThrottleTime(h.Time("---|"), h.WithScheduler()))).ToBe(expected)
			h.ExpectSubscriptions(e1).ToBe(subs)
		})
	})

	t.Run("取消订阅时清除挂起的计时", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Cold("-a---------b-|")
			unsub := "---!"
			expected := "-a-"

			h.ExpectObservable(e1.Pipe(rxstream.ThrottleTime(h.Time("-----|"), h.WithScheduler())), unsub).ToBe(expected)
			h.ExpectSubscriptions(e1).ToBe("^--!")
		})
	})
}

// ============================================================================
// Delay 测试
// ============================================================================

func TestDelay(t *testing.T) {
	t.Run("值和完成整体后移", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Cold("-a--b--|")
			subs := "^------!"
			expected := "---a--b--|"

			h.ExpectObservable(e1.Pipe(rxstream.Delay(h.Time("--|"), h.WithScheduler()))).ToBe(expected)
			h.ExpectSubscriptions(e1).ToBe(subs)
		})
	})

	t.Run("错误立即转发并丢弃挂起的值", func(t *testing.T) {
		boom := errors.New("boom")
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Cold("-a--#", rxtest.WithError(boom))
			expected := "----#"

			h.ExpectObservable(e1.Pipe(rxstream.Delay(h.Time("---|"), h.WithScheduler()))).
				ToBe(expected, rxtest.WithError(boom))
		})
	})

	t.Run("热流上的延迟", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Hot("--a--^--b--c--|")
			subs := "^--------!"
			expected := "-----b--c--|"

			h.ExpectObservable(e1.Pipe(rxstream.Delay(h.Time("--|"), h.WithScheduler()))).ToBe(expected)
			h.ExpectSubscriptions(e1).ToBe(subs)
		})
	})

	t.Run("值的映射", func(t *testing.T) {
		values := map[string]interface{}{"a": 1, "b": 2}
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Cold("a-b|", rxtest.WithValues(values))
			expected := "-a-b|"

			h.ExpectObservable(e1.Pipe(rxstream.Delay(h.Time("-|"), h.WithScheduler()))).
				ToBe(expected, rxtest.WithValues(values))
		})
	})
}
