package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-keeper/pkg/chain"
	"chain-keeper/pkg/checksum"
)

const legacyJSON = `{
	"version": "0.5.0",
	"content": {
		"nodes": [
			{"id": "a", "type": "regularNode", "position": {"x": 0, "y": 0},
			 "data": {"schemaId": "chainner:image:load", "inputData": ["in.png"]}},
			{"id": "b", "type": "regularNode", "position": {"x": 300, "y": 0},
			 "data": {"schemaId": "chainner:image:caption", "inputData": [null, "hello"]}}
		],
		"edges": [
			{"source": "a", "sourceHandle": "a-0", "target": "b", "targetHandle": "b-0"}
		]
	}
}`

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestLoadCommand(t *testing.T) {
	out, _, err := run(t, "load", writeDoc(t, legacyJSON))
	require.NoError(t, err)

	var res struct {
		From     int      `json:"from"`
		Revision int      `json:"revision"`
		Applied  []string `json:"applied"`
		Nodes    int      `json:"nodes"`
		Edges    int      `json:"edges"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 0, res.From)
	assert.Equal(t, 5, res.Revision)
	assert.Len(t, res.Applied, 5)
	assert.Equal(t, 2, res.Nodes)
	assert.Equal(t, 1, res.Edges)
}

func TestLoadCommand_ReportsKindAndElement(t *testing.T) {
	doc := `{"version": "1", "migration": 5, "content": {
		"nodes": [{"id": "n1", "schemaId": "a"}],
		"edges": [{"id": "e1", "source": "n1", "sourceHandle": "0", "target": "n9", "targetHandle": "0"}]}}`
	_, _, err := run(t, "load", writeDoc(t, doc))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "malformed_graph (element n9)"), err.Error())
}

func TestMigrateCommand_WritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "migrated.json")
	_, stderr, err := run(t, "migrate", writeDoc(t, legacyJSON), "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "0 -> 5")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	doc, err := chain.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 5, doc.Revision())
	assert.Equal(t, "0.5.0", doc.Version)
}

func TestChecksumCommand(t *testing.T) {
	path := writeDoc(t, legacyJSON)
	out, _, err := run(t, "checksum", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "absent"`)

	t.Setenv("APP_VERSION", "7.0.0")
	out, _, err = run(t, "checksum", "--seal", path)
	require.NoError(t, err)
	doc, err := chain.Decode([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "7.0.0", doc.Version)
	assert.Equal(t, 5, doc.Revision())
	status, err := checksum.Verify(doc)
	require.NoError(t, err)
	assert.Equal(t, checksum.Match, status)
}

func TestPresetsCommand(t *testing.T) {
	out, _, err := run(t, "presets")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Separated Transparency Upscale"))
	assert.Contains(t, lines[1], "rev 0")
}

func TestSaveCommand_RequiresName(t *testing.T) {
	_, _, err := run(t, "save", writeDoc(t, legacyJSON))
	assert.ErrorContains(t, err, "name")
}

func TestLibraryCommands_NeedDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, _, err := run(t, "list")
	assert.ErrorContains(t, err, "DATABASE_URL not set")
}
