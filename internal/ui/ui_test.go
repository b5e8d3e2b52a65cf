package ui

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Names(t *testing.T) {
	assert.Equal(t, "Scanning", StageScanning.String())
	assert.Equal(t, "CHUNK", StageChunking.Icon())
	assert.Equal(t, "DONE", StageComplete.Icon())
	assert.Equal(t, "Unknown", Stage(42).String())
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	// Given: a buffer, which is never a terminal
	buf := &bytes.Buffer{}

	// When: creating a renderer
	r := NewRenderer(NewConfig(buf))

	// Then: the plain renderer is used
	assert.IsType(t, &PlainRenderer{}, r)
	assert.False(t, IsTTY(buf))
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.ErrorIs(t, err, ErrNotTTY)
	assert.Nil(t, r)
}

func TestDetectCI(t *testing.T) {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		t.Setenv(v, "")
	}
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestPlainRenderer_ThrottlesChunkingLines(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: reporting 250 files one by one
	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "Scanning 1 root"})
	progress := ProgressFunc(r)
	progress(0, 250, "")
	for i := 1; i <= 250; i++ {
		progress(i, 250, "File.cs")
	}
	r.Complete(CompletionStats{Files: 250, Chunks: 900, Skipped: 3, Duration: 1500 * time.Millisecond})

	// Then: the stage change, every hundredth file and the last file are shown
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"[SCAN] Scanning 1 root",
		"[CHUNK] 0/250",
		"[CHUNK] 100/250 - File.cs",
		"[CHUNK] 200/250 - File.cs",
		"[CHUNK] 250/250 - File.cs",
		"Complete: 250 files, 900 chunks indexed in 1.5s (3 skipped)",
	}, lines)
}

func TestPlainRenderer_ConcurrentUpdates(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	progress := ProgressFunc(r)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			progress(i, 50, "")
		}()
	}
	wg.Wait()

	assert.NotEmpty(t, buf.String())
}

func TestProgressTracker_Stats(t *testing.T) {
	// Given: a tracker on a fake clock
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	tr := newTrackerAt(clock)

	// When: a quarter of the files are done after 10s
	tr.SetStage(StageChunking, 40)
	now = now.Add(10 * time.Second)
	tr.Update(10, 40, "A.cs")
	tr.Update(5, 40, "B.cs")

	// Then: count never moves backwards and ETA follows the rate
	s := tr.Stats()
	assert.Equal(t, StageChunking, s.Stage)
	assert.Equal(t, 10, s.Current)
	assert.InDelta(t, 0.25, s.Progress, 1e-9)
	assert.InDelta(t, 1.0, s.Rate, 1e-9)
	assert.Equal(t, 30*time.Second, s.ETA)
	assert.Equal(t, "B.cs", s.CurrentFile)
	assert.Equal(t, 10*time.Second, tr.Elapsed())
}

func TestProgressTracker_ProgressIsCapped(t *testing.T) {
	tr := NewProgressTracker()
	tr.SetStage(StageChunking, 2)
	tr.Update(3, 0, "")

	s := tr.Stats()
	assert.Equal(t, 1.0, s.Progress)
	assert.Zero(t, s.ETA)
}

func TestIndexingModel_Views(t *testing.T) {
	tr := NewProgressTracker()
	m := newIndexingModel(tr, "/src/School")
	m.styles = plainStyles()

	view := m.View()
	assert.Contains(t, view, "codechat index • /src/School")
	assert.Contains(t, view, "Scan")
	assert.Contains(t, view, "Chunk")
	assert.Contains(t, view, "Scanning...")

	tr.SetStage(StageChunking, 4)
	tr.Update(2, 4, "Services/GradeService.cs")
	view = m.View()
	assert.Contains(t, view, "● Scan")
	assert.Contains(t, view, " 50%")
	assert.Contains(t, view, "2 / 4 files")
	assert.Contains(t, view, "Services/GradeService.cs")
}

func TestIndexingModel_Complete(t *testing.T) {
	m := newIndexingModel(NewProgressTracker(), "")
	m.styles = plainStyles()

	_, cmd := m.Update(completeMsg(CompletionStats{Files: 3, Chunks: 7, Skipped: 1, Duration: 2 * time.Second}))

	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Index built")
	assert.Contains(t, view, "7")
	assert.Contains(t, view, "2s")
	assert.Contains(t, view, "Skipped")
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		250 * time.Millisecond:        "250ms",
		42 * time.Second:              "42s",
		2 * time.Minute:               "2m",
		2*time.Minute + 5*time.Second: "2m 5s",
		3*time.Hour + 20*time.Minute:  "3h 20m",
	}
	for d, want := range cases {
		assert.Equal(t, want, formatDuration(d), d.String())
	}
}

func TestTruncateFilePath(t *testing.T) {
	assert.Equal(t, "Services/A.cs", truncateFilePath("Services/A.cs", 40))
	got := truncateFilePath("src/very/deep/folder/structure/GradeService.cs", 30)
	assert.LessOrEqual(t, len(got), 30)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "/GradeService.cs"))
	assert.Equal(t, "...", truncateFilePath("abcdefgh", 3))
}
