package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"parse", "subs", "check"}, names)
}

func TestRootCommandInvalidFormat(t *testing.T) {
	_, _, err := runRoot(t, "--format", "xml", "parse", "--", "-a|")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootCommandVerboseLogsToStderr(t *testing.T) {
	out, errOut, err := runRoot(t, "--verbose", "parse", "--", "-a|")
	require.NoError(t, err)
	assert.Contains(t, out, "FRAME")
	assert.Contains(t, errOut, `compiled 2 notification(s) from "-a|"`)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad input")))

	wrapped := WrapExitError(ExitFailure, "scenarios failed", errors.New("cause"))
	assert.Equal(t, "scenarios failed: cause", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}
