package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xinjiayu/rxstream/rxtest"
)

// SubsResult subs 命令的输出；Infinity 以 null 表示
type SubsResult struct {
	Marbles      string `json:"marbles"`
	Subscribed   *int64 `json:"subscribed"`
	Unsubscribed *int64 `json:"unsubscribed"`
}

// NewSubsCommand 创建 subs 命令
func NewSubsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "subs <marbles>",
		Short:         "Compile a subscription marble diagram",
		Long:          "Compile a subscription marble diagram ('^' subscribe, '!' unsubscribe) into its frames.",
		Example:       "  rxmarble subs -- '--^---!'",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubs(rootOpts, args[0], cmd)
		},
	}
}

func runSubs(rootOpts *RootOptions, marbles string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)

	log, err := rxtest.ParseSubscriptionMarbles(marbles)
	if err != nil {
		return marbleFailure(formatter, err)
	}

	result := SubsResult{
		Marbles:      marbles,
		Subscribed:   finiteFrame(log.Subscribed),
		Unsubscribed: finiteFrame(log.Unsubscribed),
	}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "subscribed:   %s\n", frameLabel(log.Subscribed))
		fmt.Fprintf(w, "unsubscribed: %s\n", frameLabel(log.Unsubscribed))
	})
}

func finiteFrame(frame int64) *int64 {
	if frame == rxtest.Infinity {
		return nil
	}
	return &frame
}

func frameLabel(frame int64) string {
	if frame == rxtest.Infinity {
		return "never"
	}
	return fmt.Sprintf("frame %d", frame)
}
