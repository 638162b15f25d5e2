package main

import (
	"bytes"
	"encoding/xml"
	"testing"

	appconfig "github.com/entrhq/browseragent/pkg/config"
	"github.com/entrhq/browseragent/pkg/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolArgs(t *testing.T) {
	raw := toolArgs(&appconfig.TaskFile{Task: `find "cheap" <flights> & hotels`, Reset: true})

	var got struct {
		Message  string `xml:"message"`
		Reset    string `xml:"reset"`
		Takeover string `xml:"takeover"`
	}
	require.NoError(t, xml.Unmarshal(raw, &got))
	assert.Equal(t, `find "cheap" <flights> & hotels`, got.Message)
	assert.Equal(t, "true", got.Reset)
	assert.Equal(t, "false", got.Takeover)
}

func TestRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.Update(supervisor.Progress{Short: "Browser: 🚦 Starting task"})
	r.Update(supervisor.Progress{Short: "Browser: 🚦 Starting task"})
	r.Update(supervisor.Progress{Short: "Browser: ✅ Done"})
	r.Outcome("The title is Example Domain\n", map[string]interface{}{"status": "done"})

	out := buf.String()
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Starting task")))
	assert.Contains(t, out, "Browser: ✅ Done")
	assert.Contains(t, out, "Status: done")
	assert.Contains(t, out, "The title is Example Domain")
}

func TestRootCommand(t *testing.T) {
	root := newRootCommand()
	assert.Equal(t, version, root.Version)

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "run", run.Name())
	for _, name := range []string{"file", "context", "reset", "takeover", "timeout", "serve"} {
		assert.NotNil(t, run.Flags().Lookup(name), name)
	}
	for _, name := range []string{"config", "api-key", "base-url", "model", "otlp-endpoint"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestRunRequiresTask(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"run"})
	root.SetOut(&bytes.Buffer{})
	assert.EqualError(t, root.Execute(), "task description is required")
}
