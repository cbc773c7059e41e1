package rxtest

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TimelineSnapshot 写入golden文件的时间线快照
type TimelineSnapshot struct {
	Name     string        `json:"name"`
	Messages []TestMessage `json:"messages"`
}

// AssertGolden 把时间线与 testdata/golden/{name}.golden 比较
//
// 重新生成golden文件：
//
//	go test ./... -update
func AssertGolden(t *testing.T, name string, messages []TestMessage) {
	t.Helper()

	if messages == nil {
		messages = []TestMessage{}
	}
	data, err := json.MarshalIndent(TimelineSnapshot{Name: name, Messages: messages}, "", "  ")
	if err != nil {
		t.Fatalf("marshal timeline %s: %v", name, err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
