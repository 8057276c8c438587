package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "witcopy", cmd.Use)
	assert.Contains(t, cmd.Long, "hierarchies")
	assert.Contains(t, cmd.Long, "idempotent")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"copy-hierarchy",
		"copy-last-n",
		"copy-single",
		"diagnose-fields",
		"download-attachments",
		"upload-attachments",
		"link-existing",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCopyHierarchyFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"copy-hierarchy"})
	require.NoError(t, err)

	stateFlag := sub.Flags().Lookup("state")
	require.NotNil(t, stateFlag)
	assert.Equal(t, defaultStatePath, stateFlag.DefValue)

	workersFlag := sub.Flags().Lookup("workers")
	require.NotNil(t, workersFlag)
	assert.Equal(t, "1", workersFlag.DefValue)

	maxFlag := sub.Flags().Lookup("max")
	require.NotNil(t, maxFlag)
	assert.Equal(t, "0", maxFlag.DefValue)

	require.NotNil(t, sub.Flags().Lookup("start-id"))
	require.NotNil(t, sub.Flags().Lookup("dry-run"))
	require.NotNil(t, sub.Flags().Lookup("rules"))
}

func TestCopyLastNFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"copy-last-n"})
	require.NoError(t, err)

	topFlag := sub.Flags().Lookup("top")
	require.NotNil(t, topFlag)
	assert.Equal(t, "10", topFlag.DefValue)
}

func TestUploadNeedsNoSourceFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"upload-attachments"})
	require.NoError(t, err)

	assert.Nil(t, sub.Flags().Lookup("source-org"))
	require.NotNil(t, sub.Flags().Lookup("target-org"))
	require.NotNil(t, sub.Flags().Lookup("dir"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "copy-single", "1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
