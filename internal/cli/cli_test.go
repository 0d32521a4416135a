package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/recsync/internal/core/ecs"
	"github.com/zeusync/recsync/internal/core/snapshot"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeSnapshot(t *testing.T, dir string) (string, *snapshot.Snapshot) {
	t.Helper()
	w := ecs.NewWorld()
	pos, err := ecs.DefineCoordComponent(w, ecs.WithID("Position"))
	require.NoError(t, err)
	name, err := ecs.DefineStringComponent(w, ecs.WithID("Name"))
	require.NoError(t, err)
	_, err = w.CreateEntityWithID("0x1", ecs.WithValue(pos, ecs.Value{"x": 1, "y": 1}), ecs.WithValue(name, ecs.Value{"value": "a"}))
	require.NoError(t, err)
	_, err = w.CreateEntityWithID("0x2", ecs.WithValue(pos, ecs.Value{"x": 2, "y": 2}))
	require.NoError(t, err)

	snap, err := snapshot.FromWorld(w, 5, 9)
	require.NoError(t, err)
	path := filepath.Join(dir, "world.snap")
	require.NoError(t, snapshot.WriteFile(path, snap))
	return path, snap
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "snapshot", "inspect", "x")
	assert.ErrorContains(t, err, "invalid format")
}

func TestSnapshotInspect_Text(t *testing.T) {
	path, snap := writeSnapshot(t, t.TempDir())

	out, err := execute(t, "snapshot", "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, snap.StateHash+" (ok)")
	assert.Contains(t, out, "blocks     5..9")
	assert.Contains(t, out, "entries    3")
	assert.Regexp(t, `Position\s+2`, out)
}

func TestSnapshotInspect_JSON(t *testing.T) {
	path, snap := writeSnapshot(t, t.TempDir())

	out, err := execute(t, "--format", "json", "snapshot", "inspect", path)
	require.NoError(t, err)

	var summary SnapshotSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.True(t, summary.Verified)
	assert.Equal(t, snap.StateHash, summary.StateHash)
	assert.Equal(t, map[string]int{"Name": 1, "Position": 2}, summary.Components)
}

func TestSnapshotInspect_Tampered(t *testing.T) {
	dir := t.TempDir()
	path, snap := writeSnapshot(t, dir)
	snap.StateHash = "0000000000000000"
	require.NoError(t, snapshot.WriteFile(path, snap))

	out, err := execute(t, "snapshot", "inspect", path)
	require.Error(t, err)
	assert.Contains(t, out, "MISMATCH")
}

func writeConfig(t *testing.T, dir, snapPath string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "recsync.toml")
	cfg := fmt.Sprintf(`
[log]
level = "error"

[sync]
ack_period = "1ms"
stats_interval = "0s"

[source]
kind = "snapshot"

[source.snapshot]
path = %q

[[components]]
id = "Position"
indexed = true
[components.schema]
x = "Number"
y = "Number"

[[components]]
id = "Name"
[components.schema]
value = "String"
`, snapPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func TestRun_ReplaysSnapshotFromConfig(t *testing.T) {
	dir := t.TempDir()
	snapPath, _ := writeSnapshot(t, dir)

	_, err := execute(t, "--config", writeConfig(t, dir, snapPath), "run")
	assert.NoError(t, err)
}

func TestSnapshotCapture_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	snapPath, original := writeSnapshot(t, dir)
	out := filepath.Join(dir, "captured.snap")

	_, err := execute(t, "--config", writeConfig(t, dir, snapPath), "snapshot", "capture", out,
		"--timeout", "5s", "--start-block", "5", "--end-block", "9")
	require.NoError(t, err)

	captured, err := snapshot.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, captured.Verify())
	assert.Equal(t, original.StateHash, captured.StateHash)
	assert.Equal(t, original.State, captured.State)
}

func TestRun_MissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "run")
	assert.Error(t, err)
}

func TestRelay_RejectsUnknownTransport(t *testing.T) {
	dir := t.TempDir()
	snapPath, _ := writeSnapshot(t, dir)
	cfgPath := filepath.Join(dir, "recsync.yaml")
	cfg := fmt.Sprintf("source:\n  kind: snapshot\n  snapshot:\n    path: %q\n", snapPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	_, err := execute(t, "--config", cfgPath, "relay", "--transport", "tcp")
	assert.ErrorContains(t, err, "relay.transport")
}
