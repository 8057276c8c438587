package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adotools/witcopy/internal/ado"
	"github.com/adotools/witcopy/internal/config"
	"github.com/adotools/witcopy/internal/mapping"
)

type copyHierarchyOptions struct {
	*RootOptions
	conn    ConnFlags
	run     RunFlags
	max     int
	startID int
}

// NewCopyHierarchyCommand creates the copy-hierarchy command.
func NewCopyHierarchyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &copyHierarchyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "copy-hierarchy",
		Short: "Copy every parent item and its descendants",
		Long: `Walks the source project for parent work items (epics and features by
default), migrates each tree child-after-parent, then restores links.
Items already migrated are updated only when their source changed, so
the command is safe to re-run and to resume with --start-id.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopyHierarchy(cmd, opts)
		},
	}

	addSourceFlags(cmd, &opts.conn)
	addTargetFlags(cmd, &opts.conn)
	addRulesFlag(cmd, &opts.conn)
	addStateFlag(cmd, &opts.conn)
	addRunFlags(cmd, &opts.run)
	cmd.Flags().IntVar(&opts.max, "max", 0, "stop after this many parent items (0 means all)")
	cmd.Flags().IntVar(&opts.startID, "start-id", 0, "resume from this source item id")

	return cmd
}

func runCopyHierarchy(cmd *cobra.Command, opts *copyHierarchyOptions) error {
	initLogging(opts.Verbose)
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	eng, cfg, closeState, err := newEngine(ctx, opts.RootOptions, &opts.conn, &opts.run, "copy-hierarchy")
	if err != nil {
		return err
	}
	defer closeState()

	roots, err := seedParents(ctx, eng.Source, eng.Rules, cfg, opts.startID, opts.max)
	if err != nil {
		return WrapExitError(ExitPartial, "list parent items", err)
	}
	f.VerboseLog("seeding %d parent items", len(roots))

	run, runErr := eng.MigrateAll(ctx, roots)
	return finishRun(f, run, runErr)
}

// seedParents pages through the source parent items in id order and
// returns one root set per parent, so independent trees can migrate
// concurrently. Each page feeds its last id back into the next query;
// ids at or below the cursor are skipped so a server that repeats a
// page cannot stall the loop.
func seedParents(ctx context.Context, store ado.Store, rules *mapping.Rules, cfg *config.Config, startID, max int) ([][]int, error) {
	afterID := 0
	if startID > 0 {
		afterID = startID - 1
	}

	var roots [][]int
	for {
		wiql := ado.ParentsPageQuery(cfg.Source.Project, rules.ParentTypes, afterID, cfg.ExcludeField, cfg.ExcludeValue)
		ids, err := store.QueryIDs(ctx, wiql)
		if err != nil {
			return nil, fmt.Errorf("query parent page: %w", err)
		}

		progressed := false
		for _, id := range ids {
			if id <= afterID {
				continue
			}
			afterID = id
			progressed = true
			roots = append(roots, []int{id})
			if max > 0 && len(roots) >= max {
				return roots, nil
			}
		}
		if !progressed {
			return roots, nil
		}
	}
}
