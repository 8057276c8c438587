package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type copySingleOptions struct {
	*RootOptions
	conn ConnFlags
	run  RunFlags
}

// NewCopySingleCommand creates the copy-single command.
func NewCopySingleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &copySingleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "copy-single <id>",
		Short: "Copy one work item and its descendants",
		Long: `Migrates a single source work item together with everything below it.
Handy for spot-fixing one tree or for verifying mapping rules on a
known item before a full run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopySingle(cmd, opts, args[0])
		},
	}

	addSourceFlags(cmd, &opts.conn)
	addTargetFlags(cmd, &opts.conn)
	addRulesFlag(cmd, &opts.conn)
	addStateFlag(cmd, &opts.conn)
	addRunFlags(cmd, &opts.run)

	return cmd
}

func runCopySingle(cmd *cobra.Command, opts *copySingleOptions, arg string) error {
	initLogging(opts.Verbose)
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return NewExitError(ExitConfigError, fmt.Sprintf("invalid work item id %q", arg))
	}

	eng, _, closeState, err := newEngine(ctx, opts.RootOptions, &opts.conn, &opts.run, "copy-single")
	if err != nil {
		return err
	}
	defer closeState()

	run, runErr := eng.MigrateAll(ctx, [][]int{{id}})
	if runErr == nil && len(run.Items) == 0 {
		// The batch fetch omits ids the service does not return, so an
		// empty run here means the item does not exist or is invisible
		// to the token.
		return NewExitError(ExitPartial, fmt.Sprintf("source item #%d not found", id))
	}
	return finishRun(f, run, runErr)
}
