package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/models"
	"github.com/posefactory/renderq/internal/store"
)

// renderTool mimics the external tool contract: parse --output from
// argv, write a result file, exit 0.
const renderTool = `#!/bin/sh
out=""
while [ "$#" -gt 0 ]; do
  if [ "$1" = "--output" ]; then out="$2"; fi
  shift
done
mkdir -p "$out/alice"
printf png > "$out/alice/front.png"
echo "rendered one frame"
`

const failingTool = `#!/bin/sh
echo "render pipeline exploded" >&2
exit 1
`

const hangingTool = `#!/bin/sh
sleep 30
`

func writeTool(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte(content), 0755))
	return path
}

func newTestAgent(t *testing.T, st store.Store, tool string) *Agent {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Worker.WorkspaceRoot = t.TempDir()
	config.Worker.PollInterval = "10ms"
	config.Worker.ToolTimeout = "5s"
	config.Worker.Tool = tool

	agent, err := NewAgent(st, config, common.GetLogger())
	require.NoError(t, err)
	return agent
}

func seedJob(t *testing.T, st store.Store, id string) *models.Manifest {
	t.Helper()
	ctx := context.Background()

	m := &models.Manifest{
		JobID:     id,
		JobType:   models.JobTypeRender,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Params: models.Params{
			Script:     "render/r.py",
			Characters: []string{"alice"},
		},
	}
	data, err := m.ToJSON()
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, "scripts/render/r.py", []byte("print('render')\n")))
	require.NoError(t, st.Put(ctx, models.PendingKey(id), data))
	return m
}

func TestAgentHappyPath(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	agent := newTestAgent(t, st, writeTool(t, renderTool))
	id := "render_20260101_120000_abcd1234"
	seedJob(t, st, id)

	busy, err := agent.pollOnce(ctx)
	require.NoError(t, err)
	require.True(t, busy)

	keys := st.Keys()
	require.Contains(t, keys, models.ResultsKeyPrefix(id)+"alice/front.png")
	require.Contains(t, keys, models.ResultsKeyPrefix(id)+models.LogObject)
	require.NotContains(t, keys, models.ResultsKeyPrefix(id)+models.FailedSentinel)

	// No manifest left anywhere in the queue.
	require.NotContains(t, keys, models.PendingKey(id))
	require.NotContains(t, keys, models.ProcessingKey(id))

	// Per-job output removed, processed-job record kept.
	_, err = os.Stat(filepath.Join(agent.workspace.OutputRoot(), id))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(agent.workspace.JobsDir(), id+".json"))
	require.NoError(t, err)

	// The captured log made it to the store.
	log, err := st.Get(ctx, models.ResultsKeyPrefix(id)+models.LogObject)
	require.NoError(t, err)
	require.Contains(t, string(log), "rendered one frame")
}

func TestAgentToolFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	agent := newTestAgent(t, st, writeTool(t, failingTool))
	id := "render_20260101_120000_abcd1234"
	seedJob(t, st, id)

	busy, err := agent.pollOnce(ctx)
	require.NoError(t, err)
	require.True(t, busy)

	data, err := st.Get(ctx, models.ResultsKeyPrefix(id)+models.FailedSentinel)
	require.NoError(t, err)
	var record models.FailureRecord
	require.NoError(t, json.Unmarshal(data, &record))
	require.Equal(t, models.CauseToolError, record.Cause)

	log, err := st.Get(ctx, models.ResultsKeyPrefix(id)+models.LogObject)
	require.NoError(t, err)
	require.Contains(t, string(log), "render pipeline exploded")

	// Failed jobs still leave a clean queue.
	keys := st.Keys()
	require.NotContains(t, keys, models.PendingKey(id))
	require.NotContains(t, keys, models.ProcessingKey(id))
}

func TestAgentToolTimeout(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	agent := newTestAgent(t, st, writeTool(t, hangingTool))
	agent.config.Worker.ToolTimeout = "100ms"
	id := "render_20260101_120000_abcd1234"
	seedJob(t, st, id)

	start := time.Now()
	busy, err := agent.pollOnce(ctx)
	require.NoError(t, err)
	require.True(t, busy)
	require.Less(t, time.Since(start), 10*time.Second, "tool was not killed on timeout")

	data, err := st.Get(ctx, models.ResultsKeyPrefix(id)+models.FailedSentinel)
	require.NoError(t, err)
	var record models.FailureRecord
	require.NoError(t, json.Unmarshal(data, &record))
	require.Equal(t, models.CauseTimeout, record.Cause)
}

func TestAgentMissingScript(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	agent := newTestAgent(t, st, writeTool(t, renderTool))
	id := "render_20260101_120000_abcd1234"

	seedJob(t, st, id)
	require.NoError(t, st.Delete(ctx, "scripts/render/r.py"))

	busy, err := agent.pollOnce(ctx)
	require.NoError(t, err)
	require.True(t, busy)

	data, err := st.Get(ctx, models.ResultsKeyPrefix(id)+models.FailedSentinel)
	require.NoError(t, err)
	var record models.FailureRecord
	require.NoError(t, json.Unmarshal(data, &record))
	require.Equal(t, models.CauseMissingInput, record.Cause)
}

func TestClaimRace(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	first := newTestAgent(t, st, writeTool(t, renderTool))
	second := newTestAgent(t, st, writeTool(t, renderTool))
	id := "render_20260101_120000_abcd1234"
	seedJob(t, st, id)

	key := models.PendingKey(id)
	m1, err := first.claim(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, m1)

	// The loser observes the source already moved and backs off.
	m2, err := second.claim(ctx, key)
	require.NoError(t, err)
	require.Nil(t, m2)

	require.Contains(t, st.Keys(), models.ProcessingKey(id))
}

func TestAgentSkipsInvalidPendingKeys(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	agent := newTestAgent(t, st, writeTool(t, renderTool))

	require.NoError(t, st.Put(ctx, models.PendingPrefix+"notes.txt", []byte("junk")))

	busy, err := agent.pollOnce(ctx)
	require.NoError(t, err)
	require.False(t, busy)
}

func TestAgentDiscardsUnparseableManifest(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	agent := newTestAgent(t, st, writeTool(t, renderTool))
	id := "render_20260101_120000_abcd1234"

	require.NoError(t, st.Put(ctx, models.PendingKey(id), []byte("{not json")))

	busy, err := agent.pollOnce(ctx)
	require.NoError(t, err)
	require.True(t, busy)

	// Wedge removed from the queue head, failure recorded.
	require.NotContains(t, st.Keys(), models.PendingKey(id))
	data, err := st.Get(ctx, models.ResultsKeyPrefix(id)+models.FailedSentinel)
	require.NoError(t, err)
	var record models.FailureRecord
	require.NoError(t, json.Unmarshal(data, &record))
	require.Equal(t, models.CauseInternal, record.Cause)
}

func TestRecoverStaleClaims(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	agent := newTestAgent(t, st, writeTool(t, renderTool))
	agent.config.Worker.ToolTimeout = "1h"

	staleID := "render_20260101_120000_aaaa1111"
	freshID := "render_20260101_120000_bbbb2222"
	require.NoError(t, st.Put(ctx, models.ProcessingKey(staleID), []byte("{}")))
	require.NoError(t, st.Put(ctx, models.ProcessingKey(freshID), []byte("{}")))
	st.SetModified(models.ProcessingKey(staleID), time.Now().Add(-2*time.Hour))

	require.NoError(t, agent.recoverStaleClaims(ctx))

	keys := st.Keys()
	require.Contains(t, keys, models.PendingKey(staleID))
	require.NotContains(t, keys, models.ProcessingKey(staleID))
	require.Contains(t, keys, models.ProcessingKey(freshID))
	require.NotContains(t, keys, models.PendingKey(freshID))
}

func TestAgentStagingTransportLeavesProcessing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	agent := newTestAgent(t, st, writeTool(t, renderTool))
	id := "render_20260101_120000_abcd1234"
	m := seedJob(t, st, id)

	// Claim succeeds, then every download fails.
	manifest, err := agent.claim(ctx, models.PendingKey(id))
	require.NoError(t, err)
	require.Equal(t, m.JobID, manifest.JobID)

	st.FailOps = map[string]bool{"get": true, "list": true}
	agent.process(ctx, manifest)

	// Transient failure: no _FAILED sentinel, manifest stays claimed
	// for a restart or reap to retry.
	st.FailOps = nil
	keys := st.Keys()
	require.Contains(t, keys, models.ProcessingKey(id))
	require.NotContains(t, keys, models.ResultsKeyPrefix(id)+models.FailedSentinel)
}
