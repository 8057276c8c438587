package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adotools/witcopy/internal/transfer"
)

type uploadAttachmentsOptions struct {
	*RootOptions
	conn ConnFlags
	dir  string
	max  int
}

// NewUploadAttachmentsCommand creates the upload-attachments command.
// Only target credentials are needed; the files come from disk.
func NewUploadAttachmentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &uploadAttachmentsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "upload-attachments",
		Short: "Attach downloaded files to their target items",
		Long: `Walks the directory layout download-attachments produces and attaches
each file to its target item. Names the item already carries are
skipped, and uploads are recorded in the identity map so a later copy
run does not transfer them again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUploadAttachments(cmd, opts)
		},
	}

	addTargetFlags(cmd, &opts.conn)
	addStateFlag(cmd, &opts.conn)
	cmd.Flags().StringVar(&opts.dir, "dir", "", "directory of attachment pairs (env ADO_ATTACHMENTS_DIR)")
	cmd.Flags().IntVar(&opts.max, "max", 0, "stop after this many pair directories (0 means all)")

	return cmd
}

func runUploadAttachments(cmd *cobra.Command, opts *uploadAttachmentsOptions) error {
	initLogging(opts.Verbose)
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	cfg, err := opts.conn.config(false)
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

	_, tgt, err := opts.stores(cfg)
	if err != nil {
		return WrapExitError(ExitConfigError, "connect", err)
	}
	ids, err := openState(opts.conn.State)
	if err != nil {
		return err
	}
	defer ids.Close()

	copier := &transfer.Copier{Target: tgt, IDs: ids}
	uploaded, err := copier.UploadAll(ctx, dir, opts.max)
	if err != nil {
		return WrapExitError(ExitPartial, fmt.Sprintf("uploaded %d attachments", uploaded), err)
	}
	if f.Format == "json" {
		return f.Success(uploadResult{Uploaded: uploaded, Dir: dir})
	}
	fmt.Fprintf(f.Writer, "uploaded %d attachments from %s\n", uploaded, dir)
	return nil
}

type uploadResult struct {
	Uploaded int    `json:"uploaded"`
	Dir      string `json:"dir"`
}
