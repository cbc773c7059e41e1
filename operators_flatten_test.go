package rxstream_test

import (
	"fmt"
	"testing"

	"github.com/xinjiayu/rxstream"
	"github.com/xinjiayu/rxstream/rxtest"
)

// ============================================================================
// 展平操作符测试
// ============================================================================

func TestSwitchAll(t *testing.T) {
	t.Run("新内层到达时取消前一个", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			x := h.Cold("--a--b--|")
			y := h.Cold("--c--|")
			e1 := h.Cold("-x---y----|", rxtest.WithValues(map[string]interface{}{"x": x, "y": y}))
			expected := "---a---c--|"

			h.ExpectObservable(e1.Pipe(rxstream.SwitchAll())).ToBe(expected)
			h.ExpectSubscriptions(x).ToBe("-^---!")
			h.ExpectSubscriptions(y).ToBe("-----^----!")
		})
	})

	t.Run("SwitchMap投射每个值", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			inner := h.Cold("-i-i|")
			e1 := h.Cold("a--b-----|")
			expected := "-i--i-i--|"

			project := func(interface{}) rxstream.Observable { return inner }
			h.ExpectObservable(e1.Pipe(rxstream.SwitchMap(project))).ToBe(expected)
			h.ExpectSubscriptions(inner).ToBe("^--!", "---^---!")
		})
	})

	t.Run("非Observable的值导致错误", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			expectedErr := fmt.Errorf("%w: got int", rxstream.ErrNotObservable)
			h.ExpectObservable(rxstream.Of(1).Pipe(rxstream.SwitchAll())).ToBe("#", rxtest.WithError(expectedErr))
		})
	})
}

func TestConcatAll(t *testing.T) {
	t.Run("前一个完成后才订阅下一个", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			x := h.Cold("--a-|")
			y := h.Cold("-b|")
			e1 := h.Cold("-x-y----|", rxtest.WithValues(map[string]interface{}{"x": x, "y": y}))
			expected := "---a--b-|"

			h.ExpectObservable(e1.Pipe(rxstream.ConcatAll())).ToBe(expected)
			h.ExpectSubscriptions(x).ToBe("-^---!")
			h.ExpectSubscriptions(y).ToBe("-----^-!")
		})
	})

	t.Run("ConcatMap保持顺序", func(t *testing.T) {
		values := map[string]interface{}{"a": 1, "b": 2}
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Cold("ab|", rxtest.WithValues(values))
			expected := "--a--b|"

			project := func(v interface{}) rxstream.Observable {
				return h.Cold("--x|", rxtest.WithValues(map[string]interface{}{"x": v}))
			}
			h.ExpectObservable(e1.Pipe(rxstream.ConcatMap(project))).ToBe(expected, rxtest.WithValues(values))
		})
	})
}

func TestMergeAll(t *testing.T) {
	t.Run("并发订阅并交错转发", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			x := h.Cold("a--b|")
			e1 := h.Cold("-x-x--|", rxtest.WithValues(map[string]interface{}{"x": x}))
			expected := "-a-ab-b|"

			h.ExpectObservable(e1.Pipe(rxstream.MergeAll())).ToBe(expected)
			h.ExpectSubscriptions(x).ToBe("-^---!", "---^---!")
		})
	})

	t.Run("内层错误取消其余内层", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			x := h.Cold("----#")
			y := h.Cold("a-a-a-a|")
			e1 := h.Cold("-xy---|", rxtest.WithValues(map[string]interface{}{"x": x, "y": y}))
			expected := "--a-a#"

			h.ExpectObservable(e1.Pipe(rxstream.MergeAll())).ToBe(expected)
			h.ExpectSubscriptions(y).ToBe("--^--!")
			h.ExpectSubscriptions(e1).ToBe("^----!")
		})
	})

	t.Run("MergeAllN限制并发数", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			x := h.Cold("-a|")
			y := h.Cold("---b|")
			z := h.Cold("-c|")
			e1 := h.Cold("xyz|", rxtest.WithValues(map[string]interface{}{"x": x, "y": y, "z": z}))
			expected := "-a-cb|"

			h.ExpectObservable(e1.Pipe(rxstream.MergeAllN(2))).ToBe(expected)
			h.ExpectSubscriptions(z).ToBe("--^-!")
		})
	})

	t.Run("MergeMap投射每个值", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			e1 := h.Cold("a-b|")
			expected := "-a-(b|)"

			project := func(v interface{}) rxstream.Observable {
				return rxstream.Of(v).Pipe(rxstream.Delay(h.Time("-|"), h.WithScheduler()))
			}
			h.ExpectObservable(e1.Pipe(rxstream.MergeMap(project))).ToBe(expected)
		})
	})
}

func TestExhaustAll(t *testing.T) {
	t.Run("内层活跃期间忽略新内层", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			x := h.Cold("--a--b|")
			e1 := h.Cold("-x--x----x---|", rxtest.WithValues(map[string]interface{}{"x": x}))
			expected := "---a--b----a--b|"

			h.ExpectObservable(e1.Pipe(rxstream.ExhaustAll())).ToBe(expected)
			h.ExpectSubscriptions(x).ToBe("-^-----!", "---------^-----!")
		})
	})

	t.Run("ExhaustMap投射每个值", func(t *testing.T) {
		rxtest.New(t).Run(func(h *rxtest.Helpers) {
			inner := h.Cold("-i|")
			e1 := h.Cold("ab-c|")
			expected := "-i--i|"

			project := func(interface{}) rxstream.Observable { return inner }
			h.ExpectObservable(e1.Pipe(rxstream.ExhaustMap(project))).ToBe(expected)
			h.ExpectSubscriptions(inner).ToBe("^-!", "---^-!")
		})
	})
}

func TestHigherOrderTimeline(t *testing.T) {
	rxtest.New(t).Run(func(h *rxtest.Helpers) {
		x := h.Cold("a|")
		y := h.Cold("-b-|")
		e1 := h.Cold("-x--y|", rxtest.WithValues(map[string]interface{}{"x": x, "y": y}))

		h.ExpectObservable(e1).ToBe("-x--y|", rxtest.WithValues(map[string]interface{}{"x": x, "y": y}))
	})
}
