// Package config resolves the connection settings every command needs
// before its first API call. Values come from ADO_* environment variables;
// CLI flags override individual fields before Finalize validates the
// result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Endpoint is one Azure DevOps organization and project plus the PAT used
// to reach it.
type Endpoint struct {
	OrgURL  string
	Project string
	PAT     string
}

// Config carries the resolved settings for a run.
type Config struct {
	Source Endpoint
	Target Endpoint

	// AreaRoot and IterationRoot are the target-side classification roots
	// paths are remapped under. Empty falls back to the target project.
	AreaRoot      string
	IterationRoot string

	// AttachmentsDir is where download-attachments writes and
	// upload-attachments reads.
	AttachmentsDir string

	// ExcludeField and ExcludeValue, when both set, exclude seed items
	// whose field carries the value. Used to leave another organization's
	// items alone in a shared source project.
	ExcludeField string
	ExcludeValue string
}

// FromEnv reads the environment. Nothing is validated here; flags get to
// override fields first, then Finalize checks the result.
func FromEnv() *Config {
	return &Config{
		Source: Endpoint{
			OrgURL:  os.Getenv("ADO_SOURCE_ORG_URL"),
			Project: os.Getenv("ADO_SOURCE_PROJECT"),
			PAT:     os.Getenv("ADO_SOURCE_PAT"),
		},
		Target: Endpoint{
			OrgURL:  os.Getenv("ADO_TARGET_ORG_URL"),
			Project: os.Getenv("ADO_TARGET_PROJECT"),
			PAT:     os.Getenv("ADO_TARGET_PAT"),
		},
		AreaRoot:       os.Getenv("ADO_TARGET_AREA_ROOT"),
		IterationRoot:  os.Getenv("ADO_TARGET_ITERATION_ROOT"),
		AttachmentsDir: os.Getenv("ADO_ATTACHMENTS_DIR"),
		ExcludeField:   os.Getenv("ADO_EXCLUDE_OWNERORG_FIELD"),
		ExcludeValue:   os.Getenv("ADO_EXCLUDE_OWNERORG_VALUE"),
	}
}

// Finalize validates that both endpoints are complete, then normalizes:
// organization URLs lose trailing slashes and empty classification roots
// fall back to the target project. Missing settings come back as one
// FatalError naming every flag and environment variable involved.
func (c *Config) Finalize() error {
	return c.finalize(true)
}

// FinalizeTarget is Finalize for commands that only touch the target
// organization, such as upload-attachments.
func (c *Config) FinalizeTarget() error {
	return c.finalize(false)
}

func (c *Config) finalize(needSource bool) error {
	var missing []string
	check := func(v, flag, env string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, fmt.Sprintf("%s (%s)", flag, env))
		}
	}
	if needSource {
		check(c.Source.OrgURL, "--source-org", "ADO_SOURCE_ORG_URL")
		check(c.Source.Project, "--source-project", "ADO_SOURCE_PROJECT")
		check(c.Source.PAT, "--source-pat", "ADO_SOURCE_PAT")
	}
	check(c.Target.OrgURL, "--target-org", "ADO_TARGET_ORG_URL")
	check(c.Target.Project, "--target-project", "ADO_TARGET_PROJECT")
	check(c.Target.PAT, "--target-pat", "ADO_TARGET_PAT")
	if len(missing) > 0 {
		return &FatalError{Missing: missing}
	}

	c.Source.OrgURL = strings.TrimRight(strings.TrimSpace(c.Source.OrgURL), "/")
	c.Target.OrgURL = strings.TrimRight(strings.TrimSpace(c.Target.OrgURL), "/")
	if strings.TrimSpace(c.AreaRoot) == "" {
		c.AreaRoot = c.Target.Project
	}
	if strings.TrimSpace(c.IterationRoot) == "" {
		c.IterationRoot = c.Target.Project
	}
	return nil
}

// FatalError is configuration the commands cannot run without. Commands
// abort on it before any API call.
type FatalError struct {
	Missing []string
}

func (e *FatalError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

// IsFatal reports whether err is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
