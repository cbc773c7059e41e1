// Package rxtest 基于虚拟时间的测试工具：弹珠图编译、冷热流和期望断言
package rxtest

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/xinjiayu/rxstream"
)

// ============================================================================
// 时间线数据
// ============================================================================

// Infinity 表示从未发生的帧
const Infinity int64 = math.MaxInt64

// FrameDuration 一帧对应的虚拟时间
const FrameDuration = time.Millisecond

// TestMessage 时间线上的一个通知
type TestMessage struct {
	Frame int64         `json:"frame" yaml:"frame"`
	Kind  rxstream.Kind `json:"kind" yaml:"kind"`
	Value interface{}   `json:"value,omitempty" yaml:"value,omitempty"`
	Error string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Next 创建值消息
func Next(frame int64, value interface{}) TestMessage {
	return TestMessage{Frame: frame, Kind: rxstream.KindNext, Value: value}
}

// Err 创建错误消息
func Err(frame int64, err error) TestMessage {
	return TestMessage{Frame: frame, Kind: rxstream.KindError, Error: errorText(err)}
}

// Complete 创建完成消息
func Complete(frame int64) TestMessage {
	return TestMessage{Frame: frame, Kind: rxstream.KindComplete}
}

// SubscriptionLog 一次订阅的起止帧，未取消时 Unsubscribed 为 Infinity
type SubscriptionLog struct {
	Subscribed   int64 `json:"subscribed" yaml:"subscribed"`
	Unsubscribed int64 `json:"unsubscribed" yaml:"unsubscribed"`
}

// String 以 "^@3 !@7" 形式输出
func (l SubscriptionLog) String() string {
	return fmt.Sprintf("^@%s !@%s", frameText(l.Subscribed), frameText(l.Unsubscribed))
}

func frameText(frame int64) string {
	if frame == Infinity {
		return "inf"
	}
	return strconv.FormatInt(frame, 10)
}

func errorText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}

// ============================================================================
// 解析错误
// ============================================================================

// MarbleError 弹珠图语法错误
type MarbleError struct {
	Marbles string
	Pos     int
	Msg     string
}

func (e *MarbleError) Error() string {
	return fmt.Sprintf("rxtest: invalid marble diagram %q at position %d: %s", e.Marbles, e.Pos, e.Msg)
}

// ErrInvalidMarbles 所有 MarbleError 都匹配该哨兵错误
var ErrInvalidMarbles = errors.New("rxtest: invalid marble diagram")

// Is 支持 errors.Is(err, ErrInvalidMarbles)
func (e *MarbleError) Is(target error) bool {
	return target == ErrInvalidMarbles
}

// ============================================================================
// 弹珠图解析
// ============================================================================

// timeProgression 时间推进记号，只能出现在开头或空白之后，且后面必须是空白或结尾
var timeProgression = regexp.MustCompile(`^(\d+(?:\.\d+)?)(ms|s|m)(?:\s|$)`)

// matchTimeProgression 尝试在pos处匹配时间推进记号，返回推进的帧数和消耗的字节数
func matchTimeProgression(marbles string, pos int) (int64, int, bool) {
	if pos > 0 {
		prev, _ := utf8.DecodeLastRuneInString(marbles[:pos])
		if !unicode.IsSpace(prev) {
			return 0, 0, false
		}
	}

	m := timeProgression.FindStringSubmatch(marbles[pos:])
	if m == nil {
		return 0, 0, false
	}

	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}

	var unit time.Duration
	switch m[2] {
	case "ms":
		unit = time.Millisecond
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	}

	// 超出int64的帧数截断为 Infinity，由调用方报告
	frames := amount * float64(unit) / float64(FrameDuration)
	if frames >= float64(Infinity) {
		return Infinity, len(m[0]), true
	}
	return int64(frames), len(m[0]), true
}

// fitsTimeline 判断frame推进frames帧后仍小于 Infinity
func fitsTimeline(frame, frames int64) bool {
	return frames < Infinity-frame
}

// ParseMarbles 把弹珠图编译为时间线
//
// values 把字符映射为值，缺省时值就是字符本身；errorValue 是 '#' 代表的错误。
// values 中的 *ColdObservable 会被展开为其消息列表，用于描述高阶流的期望。
func ParseMarbles(marbles string, values map[string]interface{}, errorValue error) ([]TestMessage, error) {
	return parseMarbles(marbles, values, errorValue, true)
}

func parseMarbles(marbles string, values map[string]interface{}, errorValue error, materialize bool) ([]TestMessage, error) {
	fail := func(pos int, format string, args ...interface{}) ([]TestMessage, error) {
		return nil, &MarbleError{Marbles: marbles, Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}

	var (
		messages   []TestMessage
		frame      int64
		groupStart int64 = -1
		offset     int64
		seenOffset bool
	)

	at := func() int64 {
		if groupStart > -1 {
			return groupStart
		}
		return frame
	}

	for pos := 0; pos < len(marbles); {
		c, size := utf8.DecodeRuneInString(marbles[pos:])
		advance := int64(0)

		switch {
		case unicode.IsSpace(c):
		case c == '-':
			advance = 1
		case c == '(':
			if groupStart > -1 {
				return fail(pos, "nested groups are not allowed")
			}
			groupStart = frame
			advance = 1
		case c == ')':
			if groupStart == -1 {
				return fail(pos, "unmatched ')'")
			}
			groupStart = -1
			advance = 1
		case c == '^':
			if seenOffset {
				return fail(pos, "found a second subscription point '^'")
			}
			seenOffset = true
			offset = frame
			advance = 1
		case c == '|':
			messages = append(messages, Complete(at()))
			advance = 1
		case c == '#':
			messages = append(messages, Err(at(), errorValue))
			advance = 1
		case c == '!':
			return fail(pos, "conventional marble diagrams cannot have the unsubscription marker '!'")
		case unicode.IsDigit(c) || unicode.IsLetter(c):
			if unicode.IsDigit(c) {
				if frames, consumed, ok := matchTimeProgression(marbles, pos); ok {
					if !fitsTimeline(frame, frames) {
						return fail(pos, "time progression %q overflows the timeline", strings.TrimSpace(marbles[pos:pos+consumed]))
					}
					frame += frames
					pos += consumed
					continue
				}
			}
			key := string(c)
			var value interface{} = key
			if values != nil {
				if v, ok := values[key]; ok {
					value = v
				}
			}
			if materialize {
				if cold, ok := value.(*ColdObservable); ok {
					value = append([]TestMessage{}, cold.Messages...)
				}
			}
			messages = append(messages, Next(at(), value))
			advance = 1
		default:
			return fail(pos, "unexpected character %q", c)
		}

		frame += advance
		pos += size
	}

	if groupStart > -1 {
		return fail(len(marbles), "unclosed group")
	}

	if offset != 0 {
		for i := range messages {
			messages[i].Frame -= offset
		}
	}
	return messages, nil
}

// ParseSubscriptionMarbles 解析订阅弹珠图
//
// 只允许 '-'、时间推进记号、分组括号、一个 '^' 和一个 '!'；'!' 不推进时间。
// 没有 '^' 时 Subscribed 为 Infinity。
func ParseSubscriptionMarbles(marbles string) (SubscriptionLog, error) {
	fail := func(pos int, format string, args ...interface{}) (SubscriptionLog, error) {
		return SubscriptionLog{}, &MarbleError{Marbles: marbles, Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}

	var (
		frame      int64
		groupStart int64 = -1
	)
	log := SubscriptionLog{Subscribed: Infinity, Unsubscribed: Infinity}

	at := func() int64 {
		if groupStart > -1 {
			return groupStart
		}
		return frame
	}

	for pos := 0; pos < len(marbles); {
		c, size := utf8.DecodeRuneInString(marbles[pos:])
		advance := int64(0)

		switch {
		case unicode.IsSpace(c):
		case c == '-':
			advance = 1
		case c == '(':
			if groupStart > -1 {
				return fail(pos, "nested groups are not allowed")
			}
			groupStart = frame
			advance = 1
		case c == ')':
			if groupStart == -1 {
				return fail(pos, "unmatched ')'")
			}
			groupStart = -1
			advance = 1
		case c == '^':
			if log.Subscribed != Infinity {
				return fail(pos, "found a second subscription point '^'")
			}
			log.Subscribed = at()
			advance = 1
		case c == '!':
			if log.Unsubscribed != Infinity {
				return fail(pos, "found a second unsubscription point '!'")
			}
			log.Unsubscribed = at()
		default:
			if unicode.IsDigit(c) {
				if frames, consumed, ok := matchTimeProgression(marbles, pos); ok {
					if !fitsTimeline(frame, frames) {
						return fail(pos, "time progression %q overflows the timeline", strings.TrimSpace(marbles[pos:pos+consumed]))
					}
					frame += frames
					pos += consumed
					continue
				}
			}
			return fail(pos, "only '^' and '!' markers are allowed in a subscription marble diagram, found %q", c)
		}

		frame += advance
		pos += size
	}

	if groupStart > -1 {
		return fail(len(marbles), "unclosed group")
	}
	if log.Unsubscribed != Infinity && log.Subscribed != Infinity && log.Unsubscribed < log.Subscribed {
		return fail(len(marbles), "unsubscription point precedes subscription point")
	}
	return log, nil
}

// mustParseMarbles 解析失败时panic，供测试辅助函数使用
func mustParseMarbles(marbles string, values map[string]interface{}, errorValue error, materialize bool) []TestMessage {
	messages, err := parseMarbles(marbles, values, errorValue, materialize)
	if err != nil {
		panic(err)
	}
	return messages
}

func mustParseSubscriptionMarbles(marbles string) SubscriptionLog {
	log, err := ParseSubscriptionMarbles(marbles)
	if err != nil {
		panic(err)
	}
	return log
}
