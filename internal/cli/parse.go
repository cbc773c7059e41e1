package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xinjiayu/rxstream/rxtest"
)

// ParseResult parse 命令的输出
type ParseResult struct {
	Marbles  string               `json:"marbles"`
	Messages []rxtest.TestMessage `json:"messages"`
}

type parseOptions struct {
	values string
	errMsg string
}

// NewParseCommand 创建 parse 命令
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &parseOptions{}

	cmd := &cobra.Command{
		Use:   "parse <marbles>",
		Short: "Compile a marble diagram into a timeline",
		Long: `Compile a marble diagram into its timestamped notifications.

Each frame is one virtual millisecond. Values are the marble characters
unless --values maps them, e.g. --values '{"a": 1, "b": 2}'.`,
		Example:       "  rxmarble parse -- '-a--b-|'\n  rxmarble parse --values '{\"a\": 1}' 'a-(b|)'",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.values, "values", "", "JSON object mapping marble characters to values")
	cmd.Flags().StringVar(&opts.errMsg, "error", "", "error message represented by '#'")

	return cmd
}

func runParse(rootOpts *RootOptions, opts *parseOptions, marbles string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)

	var values map[string]interface{}
	if opts.values != "" {
		if err := json.Unmarshal([]byte(opts.values), &values); err != nil {
			_ = formatter.Error(ErrCodeInvalidValues, "invalid --values: "+err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid --values", err)
		}
	}

	var errorValue error
	if opts.errMsg != "" {
		errorValue = errors.New(opts.errMsg)
	}

	messages, err := rxtest.ParseMarbles(marbles, values, errorValue)
	if err != nil {
		return marbleFailure(formatter, err)
	}
	if messages == nil {
		messages = []rxtest.TestMessage{}
	}
	formatter.VerboseLog("compiled %d notification(s) from %q", len(messages), marbles)

	result := ParseResult{Marbles: marbles, Messages: messages}
	return formatter.Success(result, func(w io.Writer) {
		writeTimeline(w, messages)
	})
}

// marbleFailure 输出弹珠图语法错误
func marbleFailure(formatter *OutputFormatter, err error) error {
	var marbleErr *rxtest.MarbleError
	var details interface{}
	if errors.As(err, &marbleErr) {
		details = map[string]interface{}{"position": marbleErr.Pos}
	}
	_ = formatter.Error(ErrCodeInvalidMarbles, err.Error(), details)
	return WrapExitError(ExitCommandError, "invalid marble diagram", err)
}

func writeTimeline(w io.Writer, messages []rxtest.TestMessage) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "(no notifications)")
		return
	}
	fmt.Fprintf(w, "%-6s %-9s %s\n", "FRAME", "KIND", "VALUE")
	for _, msg := range messages {
		var value string
		switch {
		case msg.Error != "":
			value = msg.Error
		case msg.Value != nil:
			value = fmt.Sprintf("%v", msg.Value)
		}
		fmt.Fprintf(w, "%-6d %-9s %s\n", msg.Frame, msg.Kind, value)
	}
}
