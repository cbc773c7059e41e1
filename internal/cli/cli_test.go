package cli

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/xinjiayu/rxstream"
)

// runRoot 通过根命令执行args，返回标准输出、标准错误和错误
func runRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(func() { rxstream.SetLogger(nil) })

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
