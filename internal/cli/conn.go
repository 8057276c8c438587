package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adotools/witcopy/internal/ado"
	"github.com/adotools/witcopy/internal/config"
	"github.com/adotools/witcopy/internal/engine"
	"github.com/adotools/witcopy/internal/identity"
	"github.com/adotools/witcopy/internal/mapping"
	"github.com/adotools/witcopy/internal/report"
)

// defaultStatePath is where the identity map lives unless --state says
// otherwise.
const defaultStatePath = ".witcopy/state.db"

// ConnFlags are the connection flags commands share. Empty values fall
// back to the ADO_* environment variables.
type ConnFlags struct {
	SourceOrg     string
	SourceProject string
	SourcePAT     string
	TargetOrg     string
	TargetProject string
	TargetPAT     string
	Rules         string
	State         string
}

func addSourceFlags(cmd *cobra.Command, f *ConnFlags) {
	cmd.Flags().StringVar(&f.SourceOrg, "source-org", "", "source organization URL (env ADO_SOURCE_ORG_URL)")
	cmd.Flags().StringVar(&f.SourceProject, "source-project", "", "source project (env ADO_SOURCE_PROJECT)")
	cmd.Flags().StringVar(&f.SourcePAT, "source-pat", "", "source personal access token (env ADO_SOURCE_PAT)")
}

func addTargetFlags(cmd *cobra.Command, f *ConnFlags) {
	cmd.Flags().StringVar(&f.TargetOrg, "target-org", "", "target organization URL (env ADO_TARGET_ORG_URL)")
	cmd.Flags().StringVar(&f.TargetProject, "target-project", "", "target project (env ADO_TARGET_PROJECT)")
	cmd.Flags().StringVar(&f.TargetPAT, "target-pat", "", "target personal access token (env ADO_TARGET_PAT)")
}

func addRulesFlag(cmd *cobra.Command, f *ConnFlags) {
	cmd.Flags().StringVar(&f.Rules, "rules", "", "mapping rules YAML file (defaults apply when omitted)")
}

func addStateFlag(cmd *cobra.Command, f *ConnFlags) {
	cmd.Flags().StringVar(&f.State, "state", defaultStatePath, "identity map database path")
}

// config resolves environment and flag values into a validated Config.
// Failures are configuration errors, exit code 2.
func (f *ConnFlags) config(needSource bool) (*config.Config, error) {
	cfg := config.FromEnv()
	if f.SourceOrg != "" {
		cfg.Source.OrgURL = f.SourceOrg
	}
	if f.SourceProject != "" {
		cfg.Source.Project = f.SourceProject
	}
	if f.SourcePAT != "" {
		cfg.Source.PAT = f.SourcePAT
	}
	if f.TargetOrg != "" {
		cfg.Target.OrgURL = f.TargetOrg
	}
	if f.TargetProject != "" {
		cfg.Target.Project = f.TargetProject
	}
	if f.TargetPAT != "" {
		cfg.Target.PAT = f.TargetPAT
	}

	var err error
	if needSource {
		err = cfg.Finalize()
	} else {
		err = cfg.FinalizeTarget()
	}
	if err != nil {
		return nil, WrapExitError(ExitConfigError, "configuration incomplete", err)
	}
	return cfg, nil
}

// stores builds the source and target stores, honoring the test override.
func (o *RootOptions) stores(cfg *config.Config) (ado.Store, ado.Store, error) {
	if o.Stores != nil {
		return o.Stores(cfg)
	}
	src := ado.NewClient(ado.ClientConfig{
		OrgURL:  cfg.Source.OrgURL,
		Project: cfg.Source.Project,
		PAT:     cfg.Source.PAT,
	})
	tgt := ado.NewClient(ado.ClientConfig{
		OrgURL:  cfg.Target.OrgURL,
		Project: cfg.Target.Project,
		PAT:     cfg.Target.PAT,
	})
	return src, tgt, nil
}

// openState opens the identity map, creating its directory if needed.
func openState(path string) (*identity.Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, WrapExitError(ExitConfigError, "create state directory", err)
		}
	}
	ids, err := identity.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitConfigError, "open state database", err)
	}
	return ids, nil
}

// loadRules loads the rules file, or the defaults when none is given.
func loadRules(path string) (*mapping.Rules, error) {
	if path == "" {
		return mapping.DefaultRules(), nil
	}
	rules, err := mapping.LoadRules(path)
	if err != nil {
		return nil, WrapExitError(ExitConfigError, "load mapping rules", err)
	}
	return rules, nil
}

// RunFlags are the migration policy flags the copy commands share.
type RunFlags struct {
	DryRun          bool
	WithComments    bool
	WithAttachments bool
	Workers         int
	AreaRoot        string
	IterationRoot   string
	ForceRoot       bool
}

func addRunFlags(cmd *cobra.Command, f *RunFlags) {
	cmd.Flags().BoolVar(&f.DryRun, "dry-run", false, "report what would change without writing anything")
	cmd.Flags().BoolVar(&f.WithComments, "with-comments", false, "copy comments to migrated items")
	cmd.Flags().BoolVar(&f.WithAttachments, "with-attachments", false, "copy attachments to migrated items")
	cmd.Flags().IntVar(&f.Workers, "workers", 1, "independent closures migrated concurrently")
	cmd.Flags().StringVar(&f.AreaRoot, "area-root", "", "target area path root (env ADO_TARGET_AREA_ROOT)")
	cmd.Flags().StringVar(&f.IterationRoot, "iteration-root", "", "target iteration path root (env ADO_TARGET_ITERATION_ROOT)")
	cmd.Flags().BoolVar(&f.ForceRoot, "force-root", false, "collapse area and iteration paths to the root")
}

// newEngine assembles a migration engine: config, rules, stores, the
// identity map and a target schema preloaded with every type the rules
// name. The returned closer releases the state database.
func newEngine(ctx context.Context, rootOpts *RootOptions, conn *ConnFlags, rf *RunFlags, mode string) (*engine.Engine, *config.Config, func(), error) {
	cfg, err := conn.config(true)
	if err != nil {
		return nil, nil, nil, err
	}
	if rf.AreaRoot != "" {
		cfg.AreaRoot = rf.AreaRoot
	}
	if rf.IterationRoot != "" {
		cfg.IterationRoot = rf.IterationRoot
	}

	rules, err := loadRules(conn.Rules)
	if err != nil {
		return nil, nil, nil, err
	}
	src, tgt, err := rootOpts.stores(cfg)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitConfigError, "connect", err)
	}
	ids, err := openState(conn.State)
	if err != nil {
		return nil, nil, nil, err
	}

	schema, err := mapping.BuildTargetSchema(ctx, tgt, rules.TargetTypeNames())
	if err != nil {
		ids.Close()
		return nil, nil, nil, WrapExitError(ExitConfigError, "inspect target schema", err)
	}
	for _, name := range rules.TargetTypeNames() {
		if !schema.HasType(name) {
			slog.Warn("target does not define work item type", "type", name)
		}
	}

	eng := &engine.Engine{
		Source: src,
		Target: tgt,
		IDs:    ids,
		Rules:  rules,
		Schema: schema,
		Opts: mapping.Options{
			SourceProject: cfg.Source.Project,
			AreaRoot:      cfg.AreaRoot,
			IterationRoot: cfg.IterationRoot,
			ForceRoot:     rf.ForceRoot,
		},
		Mode:            mode,
		DryRun:          rf.DryRun,
		WithComments:    rf.WithComments,
		WithAttachments: rf.WithAttachments,
		Workers:         rf.Workers,
	}
	closer := func() {
		if err := ids.Close(); err != nil {
			slog.Error("closing state database", "err", err)
		}
	}
	return eng, cfg, closer, nil
}

// finishRun renders the run and maps its outcome to an exit code: clean
// runs exit 0, anything needing follow-up exits 1.
func finishRun(f *OutputFormatter, run *report.Run, runErr error) error {
	if run != nil {
		if err := f.Run(run); err != nil {
			return err
		}
	}
	if runErr != nil {
		return WrapExitError(ExitPartial, "migration did not complete", runErr)
	}
	if run != nil && run.Partial() {
		c := run.Counters()
		return NewExitError(ExitPartial, fmt.Sprintf(
			"run needs follow-up: %d failed, %d need review, %d unresolved links",
			c.Failed, c.NeedsReview, c.LinksUnresolved))
	}
	return nil
}

// commandContext returns the command's context, or a fresh background one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
