package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixRunID(t *testing.T) {
	t.Helper()
	runIDGenerator = func() string { return "run-test" }
	t.Cleanup(func() { runIDGenerator = nil })
}

func TestCheckPass(t *testing.T) {
	fixRunID(t)

	out, _, err := runRoot(t, "check", "testdata/pass.yaml")
	require.NoError(t, err)
	assert.Equal(t, "PASS simple\n\n1 passed, 0 failed\n", out)
}

func TestCheckPassJSON(t *testing.T) {
	fixRunID(t)

	out, _, err := runRoot(t, "--format", "json", "check", "testdata/pass.yaml")
	require.NoError(t, err)

	newGoldie(t).Assert(t, "check_pass_json", []byte(out))
}

func TestCheckFailure(t *testing.T) {
	fixRunID(t)

	out, _, err := runRoot(t, "check", "testdata/pass.yaml", "testdata/fail.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "1 scenario(s) failed", err.Error())

	assert.Equal(t,
		"PASS simple\n"+
			"PASS passes\n"+
			"FAIL off-by-one\n"+
			"  timeline mismatch\n"+
			"  expected: 2:next(a) 3:complete\n"+
			"  actual:   1:next(a) 2:complete\n"+
			"\n2 passed, 1 failed\n",
		out)
}

func TestCheckFailureJSON(t *testing.T) {
	fixRunID(t)

	out, _, err := runRoot(t, "--format", "json", "check", "testdata/fail.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// 失败只体现在报告里，输出仍是单个JSON文档
	dec := json.NewDecoder(strings.NewReader(out))
	var resp struct {
		Status string    `json:"status"`
		Error  *CLIError `json:"error"`
		Data   *struct {
			Passed  int `json:"passed"`
			Failed  int `json:"failed"`
			Results []struct {
				Name   string `json:"name"`
				Passed bool   `json:"passed"`
			} `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, dec.Decode(&resp))
	assert.False(t, dec.More())

	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	require.NotNil(t, resp.Data)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Results, 2)
	assert.Equal(t, "off-by-one", resp.Data.Results[1].Name)
	assert.False(t, resp.Data.Results[1].Passed)
}

func TestCheckLoadErrors(t *testing.T) {
	t.Run("文件不存在", func(t *testing.T) {
		out, _, err := runRoot(t, "check", "testdata/missing.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E201]: testdata/missing.yaml:")
	})

	t.Run("未知的操作符", func(t *testing.T) {
		out, _, err := runRoot(t, "check", "testdata/invalid.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, `unknown operator "debounce"`)
	})
}

func TestCheckVerbose(t *testing.T) {
	fixRunID(t)

	_, errOut, err := runRoot(t, "--verbose", "check", "testdata/pass.yaml")
	require.NoError(t, err)
	assert.Contains(t, errOut, "loaded 1 scenario(s) from testdata/pass.yaml")
	assert.Contains(t, errOut, "scenario simple run run-test")
}
