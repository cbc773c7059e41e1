package rxtest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"

	"github.com/xinjiayu/rxstream"
)

// ============================================================================
// 场景文件
// ============================================================================

// ScenarioFile 一个YAML场景文件
type ScenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Scenario 用弹珠图描述的一条流水线及其期望
type Scenario struct {
	// Name 场景名称，在文件内唯一
	Name string `yaml:"name"`

	// Kind 源的类型：cold 或 hot，缺省为 cold
	Kind string `yaml:"kind,omitempty"`

	// Source 源的弹珠图
	Source string `yaml:"source"`

	// Values 字符到值的映射，源和期望共用
	Values map[string]interface{} `yaml:"values,omitempty"`

	// Error '#' 代表的错误消息
	Error string `yaml:"error,omitempty"`

	// Subscription 订阅弹珠图，缺省在第0帧订阅且不取消
	Subscription string `yaml:"subscription,omitempty"`

	// Operators 依次应用到源上的操作符
	Operators []OperatorStep `yaml:"operators,omitempty"`

	// Expect 期望的输出弹珠图
	Expect string `yaml:"expect"`

	// ExpectSubscriptions 期望的源订阅弹珠图，可选
	ExpectSubscriptions []string `yaml:"expect_subscriptions,omitempty"`
}

// OperatorStep 场景中的一个操作符
type OperatorStep struct {
	// Op 操作符名称，见 Operator* 常量
	Op string `yaml:"op"`

	// Frames 时间参数，单位为帧（throttle_time, delay）
	Frames int64 `yaml:"frames,omitempty"`

	// Count 数量参数（take）
	Count int `yaml:"count,omitempty"`

	// Value 常量参数（map_to）
	Value interface{} `yaml:"value,omitempty"`
}

// 支持的操作符
const (
	OperatorThrottleTime = "throttle_time"
	OperatorDelay        = "delay"
	OperatorTake         = "take"
	OperatorFirst        = "first"
	OperatorMapTo        = "map_to"
)

// 源类型
const (
	KindCold = "cold"
	KindHot  = "hot"
)

// LoadScenarios 读取并校验场景文件
func LoadScenarios(path string) (*ScenarioFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenarios(data)
}

// ParseScenarios 解析场景YAML，未知字段视为错误
func ParseScenarios(data []byte) (*ScenarioFile, error) {
	var file ScenarioFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(file.Scenarios) == 0 {
		return nil, errors.New("invalid scenario file: scenarios list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i := range file.Scenarios {
		sc := &file.Scenarios[i]
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("invalid scenario: scenarios[%d]: %w", i, err)
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("invalid scenario: scenarios[%d]: duplicate name %q", i, sc.Name)
		}
		seen[sc.Name] = true
	}

	return &file, nil
}

// Validate 检查必填字段、弹珠图语法和操作符参数
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return errors.New("name is required")
	}

	switch sc.Kind {
	case "", KindCold, KindHot:
	default:
		return fmt.Errorf("kind must be %q or %q, got %q", KindCold, KindHot, sc.Kind)
	}

	if sc.Source == "" {
		return errors.New("source is required")
	}
	if _, err := ParseMarbles(sc.Source, nil, nil); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if sc.Kind != KindHot {
		for i, c := range sc.Source {
			if c == '^' {
				return fmt.Errorf("source: cold source cannot have subscription offset '^' at position %d", i)
			}
		}
	}

	if sc.Expect == "" {
		return errors.New("expect is required")
	}
	if _, err := ParseMarbles(sc.Expect, nil, nil); err != nil {
		return fmt.Errorf("expect: %w", err)
	}

	if sc.Subscription != "" {
		if _, err := ParseSubscriptionMarbles(sc.Subscription); err != nil {
			return fmt.Errorf("subscription: %w", err)
		}
	}
	for i, m := range sc.ExpectSubscriptions {
		if _, err := ParseSubscriptionMarbles(m); err != nil {
			return fmt.Errorf("expect_subscriptions[%d]: %w", i, err)
		}
	}

	for i, step := range sc.Operators {
		if err := step.validate(); err != nil {
			return fmt.Errorf("operators[%d]: %w", i, err)
		}
	}
	return nil
}

func (step OperatorStep) validate() error {
	switch step.Op {
	case OperatorThrottleTime, OperatorDelay:
		if step.Frames <= 0 {
			return fmt.Errorf("%s requires frames > 0", step.Op)
		}
	case OperatorTake:
		if step.Count < 0 {
			return fmt.Errorf("take requires count >= 0")
		}
	case OperatorFirst:
	case OperatorMapTo:
		if step.Value == nil {
			return errors.New("map_to requires value")
		}
	case "":
		return errors.New("op is required")
	default:
		return fmt.Errorf("unknown operator %q", step.Op)
	}
	return nil
}

// operator 把场景步骤转换为绑定到scheduler的操作符
func (step OperatorStep) operator(scheduler rxstream.Scheduler) rxstream.Operator {
	frames := time.Duration(step.Frames) * FrameDuration
	switch step.Op {
	case OperatorThrottleTime:
		return rxstream.ThrottleTime(frames, rxstream.WithScheduler(scheduler))
	case OperatorDelay:
		return rxstream.Delay(frames, rxstream.WithScheduler(scheduler))
	case OperatorTake:
		return rxstream.Take(step.Count)
	case OperatorFirst:
		return rxstream.First()
	case OperatorMapTo:
		return rxstream.MapTo(step.Value)
	}
	return nil
}

// ============================================================================
// 场景执行
// ============================================================================

// ScenarioResult 一次场景执行的结果
type ScenarioResult struct {
	Name          string            `json:"name"`
	RunID         string            `json:"run_id"`
	Passed        bool              `json:"passed"`
	Failures      []string          `json:"failures,omitempty"`
	Actual        []TestMessage     `json:"actual"`
	Expected      []TestMessage     `json:"expected"`
	Subscriptions []SubscriptionLog `json:"subscriptions,omitempty"`
}

// ScenarioOption 场景执行选项
type ScenarioOption func(*scenarioConfig)

type scenarioConfig struct {
	runID func() string
}

// WithRunIDGenerator 替换运行ID的生成方式，缺省为UUIDv7
func WithRunIDGenerator(generate func() string) ScenarioOption {
	return func(c *scenarioConfig) {
		c.runID = generate
	}
}

func newRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RunScenario 在新的虚拟时间调度器上执行场景
//
// 校验失败返回错误；期望不匹配不是错误，体现在结果的 Passed 和 Failures 中。
func RunScenario(sc Scenario, options ...ScenarioOption) (*ScenarioResult, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", sc.Name, err)
	}

	config := scenarioConfig{runID: newRunID}
	for _, opt := range options {
		opt(&config)
	}

	result := &ScenarioResult{Name: sc.Name, RunID: config.runID(), Passed: true}

	scheduler := NewTestScheduler(func(actual, expected interface{}) {
		switch a := actual.(type) {
		case []TestMessage:
			result.Actual = a
			result.Expected, _ = expected.([]TestMessage)
			if !assert.ObjectsAreEqual(expected, actual) {
				result.Passed = false
				result.Failures = append(result.Failures,
					fmt.Sprintf("timeline mismatch\n  expected: %s\n  actual:   %s", FormatTimeline(result.Expected), FormatTimeline(a)))
			}
		case []SubscriptionLog:
			result.Subscriptions = a
			if !assert.ObjectsAreEqual(expected, actual) {
				result.Passed = false
				result.Failures = append(result.Failures,
					fmt.Sprintf("subscription mismatch\n  expected: %v\n  actual:   %v", expected, a))
			}
		}
	})

	var errorValue error
	if sc.Error != "" {
		errorValue = errors.New(sc.Error)
	}
	marbleOptions := []MarbleOption{WithValues(sc.Values), WithError(errorValue)}

	scheduler.Run(func(h *Helpers) {
		var (
			source   rxstream.Observable
			recorder SubscriptionSource
		)
		if sc.Kind == KindHot {
			hot := h.Hot(sc.Source, marbleOptions...)
			source, recorder = hot, hot
		} else {
			cold := h.Cold(sc.Source, marbleOptions...)
			source, recorder = cold, cold
		}

		pipeline := source
		for _, step := range sc.Operators {
			pipeline = step.operator(scheduler)(pipeline)
		}

		if sc.Subscription != "" {
			h.ExpectObservable(pipeline, sc.Subscription).ToBe(sc.Expect, marbleOptions...)
		} else {
			h.ExpectObservable(pipeline).ToBe(sc.Expect, marbleOptions...)
		}
		if len(sc.ExpectSubscriptions) > 0 {
			h.ExpectSubscriptions(recorder).ToBe(sc.ExpectSubscriptions...)
		}
	})

	return result, nil
}

// FormatTimeline 把时间线格式化为单行文本，例如 "1:next(a) 4:complete"
func FormatTimeline(messages []TestMessage) string {
	var b bytes.Buffer
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch msg.Kind {
		case rxstream.KindNext:
			fmt.Fprintf(&b, "%d:next(%v)", msg.Frame, msg.Value)
		case rxstream.KindError:
			fmt.Fprintf(&b, "%d:error(%s)", msg.Frame, msg.Error)
		default:
			fmt.Fprintf(&b, "%d:%s", msg.Frame, msg.Kind)
		}
	}
	if b.Len() == 0 {
		return "(empty)"
	}
	return b.String()
}
