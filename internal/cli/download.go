package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adotools/witcopy/internal/transfer"
)

type downloadAttachmentsOptions struct {
	*RootOptions
	conn ConnFlags
	dir  string
	max  int
}

// NewDownloadAttachmentsCommand creates the download-attachments command.
func NewDownloadAttachmentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &downloadAttachmentsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "download-attachments",
		Short: "Save source attachments of migrated items to a directory",
		Long: `Finds every migrated item in the target project and saves its source
attachments under one directory per pair, named <targetID>_from_<sourceID>.
Files already on disk are kept, so an interrupted download resumes.
Pair the result with upload-attachments for a two-step bulk transfer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownloadAttachments(cmd, opts)
		},
	}

	addSourceFlags(cmd, &opts.conn)
	addTargetFlags(cmd, &opts.conn)
	cmd.Flags().StringVar(&opts.dir, "dir", "", "directory for attachment pairs (env ADO_ATTACHMENTS_DIR)")
	cmd.Flags().IntVar(&opts.max, "max", 0, "stop after this many pairs (0 means all)")

	return cmd
}

func runDownloadAttachments(cmd *cobra.Command, opts *downloadAttachmentsOptions) error {
	initLogging(opts.Verbose)
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	cfg, err := opts.conn.config(true)
	if err != nil {
		return err
	}
	dir := opts.dir
	if dir == "" {
		dir = cfg.AttachmentsDir
	}
	if dir == "" {
		return NewExitError(ExitConfigError, "attachments directory required (--dir or ADO_ATTACHMENTS_DIR)")
	}

	src, tgt, err := opts.stores(cfg)
	if err != nil {
		return WrapExitError(ExitConfigError, "connect", err)
	}

	copier := &transfer.Copier{Source: src, Target: tgt}
	saved, err := copier.DownloadAll(ctx, dir, opts.max)
	if err != nil {
		return WrapExitError(ExitPartial, fmt.Sprintf("saved %d attachments", saved), err)
	}
	if f.Format == "json" {
		return f.Success(downloadResult{Saved: saved, Dir: dir})
	}
	fmt.Fprintf(f.Writer, "saved %d attachments under %s\n", saved, dir)
	return nil
}

type downloadResult struct {
	Saved int    `json:"saved"`
	Dir   string `json:"dir"`
}
