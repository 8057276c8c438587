package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/adotools/witcopy/internal/ado"
)

type linkExistingOptions struct {
	*RootOptions
	conn   ConnFlags
	dryRun bool
}

// NewLinkExistingCommand creates the link-existing command.
func NewLinkExistingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &linkExistingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link-existing",
		Short: "Adopt already-migrated items into the identity map",
		Long: `Scans the target project for items carrying a provenance stamp and
records each source/target pair in the identity map. Run it once when
pointing a fresh state database at a project that was migrated earlier,
so the next copy updates those items instead of duplicating them.
Adopted pairs carry no field hash, which forces the first copy after
adoption down the update path.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinkExisting(cmd, opts)
		},
	}

	addTargetFlags(cmd, &opts.conn)
	addStateFlag(cmd, &opts.conn)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report what would be adopted without writing anything")

	return cmd
}

func runLinkExisting(cmd *cobra.Command, opts *linkExistingOptions) error {
	initLogging(opts.Verbose)
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	cfg, err := opts.conn.config(false)
	if err != nil {
		return err
	}
	_, tgt, err := opts.stores(cfg)
	if err != nil {
		return WrapExitError(ExitConfigError, "connect", err)
	}
	ids, err := openState(opts.conn.State)
	if err != nil {
		return err
	}
	defer ids.Close()

	targetIDs, err := tgt.QueryIDs(ctx, ado.AllReflectedQuery(cfg.Target.Project))
	if err != nil {
		return WrapExitError(ExitPartial, "query migrated items", err)
	}

	res := linkResult{DryRun: opts.dryRun}
	if len(targetIDs) > 0 {
		items, err := tgt.GetWorkItemsBatch(ctx, targetIDs, []string{ado.ReflectedField}, false)
		if err != nil {
			return WrapExitError(ExitPartial, "load migrated items", err)
		}
		for _, item := range items {
			sourceID, ok := ado.ParseReflectedID(item.Fields[ado.ReflectedField])
			if !ok {
				f.VerboseLog("target #%d has an unreadable provenance stamp", item.ID)
				res.Skipped++
				continue
			}
			if opts.dryRun {
				m, known, err := ids.Lookup(ctx, sourceID)
				if err != nil {
					return WrapExitError(ExitPartial, "read identity map", err)
				}
				classifyAdoption(&res, known, m.TargetID, sourceID, item.ID)
				continue
			}
			m, inserted, err := ids.Record(ctx, sourceID, item.ID, "")
			if err != nil {
				return WrapExitError(ExitPartial, "record mapping", err)
			}
			classifyAdoption(&res, !inserted, m.TargetID, sourceID, item.ID)
		}
	}

	if f.Format == "json" {
		return f.Success(res)
	}
	fmt.Fprintf(f.Writer, "adopted %d, already known %d, skipped %d\n",
		res.Adopted, res.Known, res.Skipped)
	return nil
}

// classifyAdoption counts one pair. A source id already mapped to a
// different target keeps its established mapping; the conflict is
// surfaced for a human to resolve.
func classifyAdoption(res *linkResult, known bool, knownTarget, sourceID, targetID int) {
	if !known {
		res.Adopted++
		return
	}
	res.Known++
	if knownTarget != targetID {
		slog.Warn("provenance conflict, keeping established mapping",
			"source", sourceID, "mapped_target", knownTarget, "stamped_target", targetID)
	}
}

type linkResult struct {
	Adopted int  `json:"adopted"`
	Known   int  `json:"known"`
	Skipped int  `json:"skipped"`
	DryRun  bool `json:"dry_run,omitempty"`
}
