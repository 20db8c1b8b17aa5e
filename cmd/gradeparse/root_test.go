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
)

const rubricYAML = `title: climate regions
criteria:
  - name: knowledge
    max_score: 5
  - name: reasoning
    max_score: 5
`

const goodResponse = "Here is the grade:\n```json\n" + `{
  "scores": {"criterion_1_score": 4, "criterion_2_score": 3, "total_score": 7},
  "rationale": {"knowledge": "names both climates"},
  "feedback": {"content": "Good comparison.", "bluffing": false}
}` + "\n```\n"

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseCommand_Stdin(t *testing.T) {
	dir := t.TempDir()
	rubric := writeFile(t, dir, "rubric.yaml", rubricYAML)

	out, err := execute(t, goodResponse, "parse", "--rubric", rubric, "--log-level", "error")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "FULL", got["tier"])
	assert.Equal(t, "direct", got["strategy"])
	payload := got["payload"].(map[string]any)
	assert.EqualValues(t, 7, payload["scores"].(map[string]any)["total_score"])
}

func TestParseCommand_Garbage(t *testing.T) {
	dir := t.TempDir()
	rubric := writeFile(t, dir, "rubric.yaml", rubricYAML)
	input := writeFile(t, dir, "s1.txt", "I cannot grade this answer.")

	out, err := execute(t, "", "parse", "--rubric", rubric, "-i", input, "--log-level", "error")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "FAILED", got["tier"])
	assert.Equal(t, true, got["needs_review"])
}

func TestParseCommand_RequiresDescriptor(t *testing.T) {
	_, err := execute(t, goodResponse, "parse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--rubric")
}

func TestSchemaCommand(t *testing.T) {
	dir := t.TempDir()
	rubric := writeFile(t, dir, "rubric.yaml", rubricYAML)

	out, err := execute(t, "", "schema", "--rubric", rubric)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "object", doc["type"])
	assert.Contains(t, doc["properties"], "scores")

	out, err = execute(t, "", "schema", "--rubric", rubric, "--defaults")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.EqualValues(t, 0, rec["scores"].(map[string]any)["total_score"])
}

func TestBatchThenRuns(t *testing.T) {
	dir := t.TempDir()
	rubric := writeFile(t, dir, "rubric.yaml", rubricYAML)
	responses := filepath.Join(dir, "responses")
	writeFile(t, responses, "alice/q1.txt", goodResponse)
	writeFile(t, responses, "bob/q1.md", "total score: 6\nfeedback: decent but thin")
	writeFile(t, responses, "carol/q1.txt", "no idea")
	dsn := filepath.Join(dir, "runs.db")
	common := []string{"--store-dsn", dsn, "--log-level", "error"}

	out, err := execute(t, "", append([]string{"batch", "--rubric", rubric, "--dir", responses}, common...)...)
	require.NoError(t, err)
	var report struct {
		Summary struct {
			Total  int            `json:"total"`
			ByTier map[string]int `json:"by_tier"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.ByTier["FULL"])
	assert.Equal(t, 1, report.Summary.ByTier["FAILED"])

	// unchanged content is not graded twice
	out, err = execute(t, "", append([]string{"batch", "--rubric", rubric, "--dir", responses}, common...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 0, report.Summary.Total)

	out, err = execute(t, "", append([]string{"runs", "list", "--json"}, common...)...)
	require.NoError(t, err)
	var runs []struct {
		ID   string `json:"id"`
		Tier string `json:"tier"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 3)

	out, err = execute(t, "", append([]string{"runs", "show", runs[0].ID}, common...)...)
	require.NoError(t, err)
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, runs[0].ID, shown["id"])
	assert.NotNil(t, shown["payload"])

	out, err = execute(t, "", append([]string{"runs", "list", "--tier", "FAILED"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "FAILED")
	assert.NotContains(t, out, "FULL")

	_, err = execute(t, "", append([]string{"runs", "show", "not-a-uuid"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_INPUT")
	assert.Contains(t, err.Error(), "must be a valid UUID")

	_, err = execute(t, "", append([]string{"runs", "show", "00000000-0000-0000-0000-000000000000"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "show run 00000000-0000-0000-0000-000000000000")
	assert.Contains(t, err.Error(), "NOT_FOUND")

	out, err = execute(t, "", append([]string{"runs", "list", "--json", "--to", "2000-01-01"}, common...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Empty(t, runs)

	_, err = execute(t, "", append([]string{"runs", "list", "--from", "May 1"}, common...)...)
	require.Error(t, err)
}
