package cli

import (
	"github.com/spf13/cobra"

	"github.com/adotools/witcopy/internal/ado"
)

type copyLastNOptions struct {
	*RootOptions
	conn ConnFlags
	run  RunFlags
	top  int
}

// NewCopyLastNCommand creates the copy-last-n command.
func NewCopyLastNCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &copyLastNOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "copy-last-n",
		Short: "Copy the most recently created parent items",
		Long: `Migrates the newest parent work items and their descendants. Useful as
a quick incremental pass after an initial copy-hierarchy run, or as a
small smoke test of the mapping rules against live data.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopyLastN(cmd, opts)
		},
	}

	addSourceFlags(cmd, &opts.conn)
	addTargetFlags(cmd, &opts.conn)
	addRulesFlag(cmd, &opts.conn)
	addStateFlag(cmd, &opts.conn)
	addRunFlags(cmd, &opts.run)
	cmd.Flags().IntVar(&opts.top, "top", 10, "how many recent parent items to copy")

	return cmd
}

func runCopyLastN(cmd *cobra.Command, opts *copyLastNOptions) error {
	initLogging(opts.Verbose)
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	eng, cfg, closeState, err := newEngine(ctx, opts.RootOptions, &opts.conn, &opts.run, "copy-last-n")
	if err != nil {
		return err
	}
	defer closeState()

	ids, err := eng.Source.QueryIDs(ctx, ado.LastCreatedQuery(cfg.Source.Project, eng.Rules.LastTypes))
	if err != nil {
		return WrapExitError(ExitPartial, "list recent items", err)
	}
	if opts.top > 0 && len(ids) > opts.top {
		ids = ids[:opts.top]
	}
	roots := make([][]int, 0, len(ids))
	for _, id := range ids {
		roots = append(roots, []int{id})
	}
	f.VerboseLog("seeding %d recent items", len(roots))

	run, runErr := eng.MigrateAll(ctx, roots)
	return finishRun(f, run, runErr)
}
