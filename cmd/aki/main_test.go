package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("AKI_OTLP_ENDPOINT", "")
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"aki"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestDispatcher(t *testing.T) {
	code, out, _ := run(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "sweep")

	code, out, _ = run(t, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "aki dev\n", out)

	code, _, errOut := run(t, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: bogus")

	code, _, _ = run(t)
	assert.Equal(t, 2, code)
}

func TestRunJSON(t *testing.T) {
	code, out, errOut := run(t, "run", "--config", "testdata/short.yaml", "--seed", "9", "--json", "--log-level", "error")
	require.Equal(t, 0, code, errOut)

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, float64(9), summary["seed"])
	assert.Equal(t, float64(12), summary["epochs"])
	assert.NotEmpty(t, summary["run_id"])
	assert.NotEmpty(t, summary["classification"])
	assert.NotContains(t, summary, "artifact")
}

func TestRunPersistsAndVerifies(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "aki.db")
	blobs := filepath.Join(dir, "blobs")

	code, out, errOut := run(t, "run", "--config", "testdata/short.yaml", "--db", db, "--artifacts", blobs, "--json", "--log-level", "error")
	require.Equal(t, 0, code, errOut)
	var summary struct {
		RunID    string `json:"run_id"`
		Hash     string `json:"event_log_hash"`
		Artifact string `json:"artifact"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.NotEmpty(t, summary.Artifact)

	code, out, errOut = run(t, "verify", "--db", db, "--run", summary.RunID)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "PASS "+summary.RunID+": chain "+summary.Hash+"\n", out)

	code, out, errOut = run(t, "verify", "--artifacts", blobs, "--digest", summary.Artifact, "--json")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"verified": true`)

	code, out, _ = run(t, "verify", "--db", db, "--run", "missing")
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(out, "FAIL "))
}

func TestRunHumanOutput(t *testing.T) {
	code, out, errOut := run(t, "run", "--config", "testdata/short.yaml", "--log-level", "error")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Classification: ")
	assert.Contains(t, out, "Events:         ")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	code, _, errOut := run(t, "run", "--config", "testdata/invalid.yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "msrw_cycles")

	code, _, _ = run(t, "run", "--config", "testdata/short.yaml", "--model", "mystery")
	assert.Equal(t, 1, code)

	code, _, _ = run(t, "run", "--log-level", "loud")
	assert.Equal(t, 2, code)

	code, _, _ = run(t, "run", "--nope")
	assert.Equal(t, 2, code)
}

func TestSweep(t *testing.T) {
	code, out, errOut := run(t, "sweep", "--config", "testdata/short.yaml", "--seeds", "1-3", "--parallel", "2", "--json")
	require.Equal(t, 0, code, errOut)
	var report struct {
		Runs []struct {
			Seed int64 `json:"seed"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Runs, 3)
	assert.Equal(t, int64(1), report.Runs[0].Seed)
	assert.Equal(t, int64(3), report.Runs[2].Seed)

	code, out, errOut = run(t, "sweep", "--config", "testdata/short.yaml", "--seeds", "4,5")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "CLASSIFICATION")

	code, _, _ = run(t, "sweep", "--config", "testdata/short.yaml")
	assert.Equal(t, 2, code)
	code, _, _ = run(t, "sweep", "--seeds", "5-1")
	assert.Equal(t, 2, code)
}

func TestVerifyUsage(t *testing.T) {
	code, _, _ := run(t, "verify")
	assert.Equal(t, 2, code)
	code, _, _ = run(t, "verify", "--db", "x.db", "--run", "r", "--artifacts", "d", "--digest", "sha256:00")
	assert.Equal(t, 2, code)
}

func TestAudit(t *testing.T) {
	code, out, errOut := run(t, "audit")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "PASS edge_oscillator")
	assert.Contains(t, out, "PASS noop")

	code, out, _ = run(t, "audit", "--model", "learning_bandit", "--json")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"passed": true`)

	code, _, _ = run(t, "audit", "--model", "mystery")
	assert.Equal(t, 2, code)
}
