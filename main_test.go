package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd(&app{})

	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"serve", "ask", "ingest", "clear"})

	ingest, _, err := root.Find([]string{"ingest"})
	require.NoError(t, err)
	assert.Equal(t, defaultRecordLabel, ingest.Flags().Lookup("label").DefValue)

	clear, _, err := root.Find([]string{"clear"})
	require.NoError(t, err)
	assert.NotNil(t, clear.Flags().Lookup("confirm"))
}

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	answer, err := prompt(strings.NewReader("  yes \n"), &out, "Continue? ")
	require.NoError(t, err)
	assert.Equal(t, "yes", answer)
	assert.Equal(t, "Continue? ", out.String())

	answer, err = prompt(strings.NewReader(""), &out, "Continue? ")
	require.NoError(t, err)
	assert.Empty(t, answer)
}

func TestClearAbortsWithoutConfirmation(t *testing.T) {
	t.Chdir(t.TempDir())

	a := &app{}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader("n\n"))
	root.SetArgs([]string{"clear"})

	require.NoError(t, execute(a, root))
	assert.Contains(t, out.String(), "clear aborted")
	assert.True(t, a.closed)
}

func TestExecuteClosesAfterFailedCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	a := &app{}
	root := newRootCmd(a)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.AddCommand(&cobra.Command{
		Use: "broken",
		RunE: func(*cobra.Command, []string) error {
			return errors.New("run failed")
		},
	})
	root.SetArgs([]string{"broken"})

	err := execute(a, root)
	require.EqualError(t, err, "run failed")
	assert.NotNil(t, a.logger)
	assert.NotNil(t, a.tracing)
	assert.True(t, a.closed)
}
