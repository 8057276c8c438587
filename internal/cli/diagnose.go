package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adotools/witcopy/internal/ado"
	"github.com/adotools/witcopy/internal/mapping"
)

type diagnoseFieldsOptions struct {
	*RootOptions
	conn ConnFlags
}

// NewDiagnoseFieldsCommand creates the diagnose-fields command.
func NewDiagnoseFieldsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &diagnoseFieldsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diagnose-fields",
		Short: "Compare field inventories between source and target",
		Long: `Fetches the field inventories of both projects and reports fields the
other side lacks. Values copied into a field the target does not define
are dropped silently during migration, so run this before a first copy.
Read-only, writes nothing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnoseFields(cmd, opts)
		},
	}

	addSourceFlags(cmd, &opts.conn)
	addTargetFlags(cmd, &opts.conn)

	return cmd
}

func runDiagnoseFields(cmd *cobra.Command, opts *diagnoseFieldsOptions) error {
	initLogging(opts.Verbose)
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	cfg, err := opts.conn.config(true)
	if err != nil {
		return err
	}
	src, tgt, err := opts.stores(cfg)
	if err != nil {
		return WrapExitError(ExitConfigError, "connect", err)
	}

	srcFields, err := src.GetFields(ctx)
	if err != nil {
		return WrapExitError(ExitPartial, "fetch source fields", err)
	}
	tgtFields, err := tgt.GetFields(ctx)
	if err != nil {
		return WrapExitError(ExitPartial, "fetch target fields", err)
	}

	diff := mapping.SchemaDiff(srcFields, tgtFields)
	if f.Format == "json" {
		return f.Success(fieldDiffPayload{
			MissingInTarget: diff.MissingInTarget,
			MissingInSource: diff.MissingInSource,
		})
	}
	renderDiff(f.Writer, diff)
	return nil
}

type fieldDiffPayload struct {
	MissingInTarget []ado.Field `json:"missing_in_target"`
	MissingInSource []ado.Field `json:"missing_in_source"`
}

func renderDiff(w io.Writer, d mapping.Diff) {
	if len(d.MissingInTarget) == 0 && len(d.MissingInSource) == 0 {
		fmt.Fprintln(w, "field inventories match")
		return
	}
	if len(d.MissingInTarget) > 0 {
		fmt.Fprintf(w, "fields only in source (%d), values are dropped on migration:\n", len(d.MissingInTarget))
		for _, fld := range d.MissingInTarget {
			fmt.Fprintf(w, "  %-48s %s\n", fld.ReferenceName, fld.Name)
		}
	}
	if len(d.MissingInSource) > 0 {
		fmt.Fprintf(w, "fields only in target (%d):\n", len(d.MissingInSource))
		for _, fld := range d.MissingInSource {
			fmt.Fprintf(w, "  %-48s %s\n", fld.ReferenceName, fld.Name)
		}
	}
}
