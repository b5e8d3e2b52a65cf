package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codechat/internal/logging"
)

func ev(path string, op Operation) FileEvent {
	return FileEvent{Root: "/repo", Path: path, Operation: op}
}

func TestDebouncer_Coalescing(t *testing.T) {
	cases := []struct {
		name string
		ops  []Operation
		want []Operation
	}{
		{"create then modify", []Operation{OpCreate, OpModify}, []Operation{OpCreate}},
		{"create then delete", []Operation{OpCreate, OpDelete}, nil},
		{"modify then delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"delete then create", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"modify twice", []Operation{OpModify, OpModify}, []Operation{OpModify}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDebouncer(time.Hour, 4, logging.Discard())
			defer d.Stop()
			for _, op := range tc.ops {
				d.Add(ev("src/Grades.cs", op))
			}
			d.Flush()

			if tc.want == nil {
				select {
				case b := <-d.Output():
					t.Fatalf("unexpected batch %v", b)
				default:
				}
				return
			}
			batch := <-d.Output()
			require.Len(t, batch, 1)
			assert.Equal(t, tc.want[0], batch[0].Operation)
		})
	}
}

func TestDebouncer_BatchesAfterQuietPeriod(t *testing.T) {
	// Given a short window
	d := NewDebouncer(30*time.Millisecond, 4, logging.Discard())
	defer d.Stop()

	// When several paths change in a burst
	d.Add(ev("b.cs", OpModify))
	d.Add(ev("a.cs", OpCreate))
	d.Add(ev("b.cs", OpModify))

	// Then one sorted batch is emitted
	select {
	case batch := <-d.Output():
		require.Len(t, batch, 2)
		assert.Equal(t, "a.cs", batch[0].Path)
		assert.Equal(t, "b.cs", batch[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
	}
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(time.Millisecond, 1, logging.Discard())
	d.Stop()
	d.Stop()
	d.Add(ev("a.cs", OpCreate))
	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestFilter_Classify(t *testing.T) {
	f := newFilter([]string{".cs", "ts"}, []string{"bin/", "*.min.js", "Archive/"})

	keep := func(rel string, isDir bool, op Operation) bool {
		_, ok := f.classify(rel, isDir, op)
		return ok
	}
	assert.True(t, keep("src/Models/Grades.cs", false, OpModify))
	assert.True(t, keep("web/app.TS", false, OpCreate))
	assert.False(t, keep("README.txt", false, OpModify))
	assert.False(t, keep("bin/Debug/App.cs", false, OpModify))
	assert.False(t, keep(".git/index", false, OpModify))
	assert.False(t, keep(".codechat/telemetry.db", false, OpModify))
	assert.False(t, keep("src/Models", true, OpModify))
	assert.True(t, keep("src/Models", true, OpDelete))

	op, ok := f.classify("src/.gitignore", false, OpModify)
	assert.True(t, ok)
	assert.Equal(t, OpIgnoreChange, op)

	assert.True(t, f.skipDir("bin"))
	assert.True(t, f.skipDir("src/.git"))
	assert.False(t, f.skipDir("src"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPoller_Diff(t *testing.T) {
	// Given a polled tree
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "Grades.cs"), "class Grades {}")
	writeFile(t, filepath.Join(root, "src", "Old.cs"), "class Old {}")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")
	p := newPoller([]string{root}, newFilter([]string{".cs"}, nil), time.Hour, logging.Discard())
	p.state = p.walk()

	// When files are added, changed and removed
	writeFile(t, filepath.Join(root, "src", "New.cs"), "class New {}")
	writeFile(t, filepath.Join(root, "src", "Grades.cs"), "class Grades { int Score; }")
	require.NoError(t, os.Remove(filepath.Join(root, "src", "Old.cs")))
	writeFile(t, filepath.Join(root, "notes.txt"), "still ignored, but longer")

	got := map[string]Operation{}
	p.diff(func(e FileEvent) { got[e.Path] = e.Operation })

	// Then each indexed change is reported once
	assert.Equal(t, map[string]Operation{
		"src/New.cs":    OpCreate,
		"src/Grades.cs": OpModify,
		"src/Old.cs":    OpDelete,
	}, got)
}

func TestWatcher_EmitsBatchOnChange(t *testing.T) {
	for _, poll := range []bool{false, true} {
		name := "fsnotify"
		if poll {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			// Given a running watcher on a temp tree
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "src", "Grades.cs"), "class Grades {}")
			w, err := New(Options{
				Roots:        []string{root},
				Extensions:   []string{".cs"},
				Exclude:      []string{"bin/"},
				Debounce:     50 * time.Millisecond,
				PollInterval: 50 * time.Millisecond,
				ForcePoll:    poll,
			}, logging.Discard())
			require.NoError(t, err)
			assert.Equal(t, name, w.Mode())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- w.Start(ctx) }()
			defer func() {
				cancel()
				<-done
			}()
			// Give the watcher time to register directories or take its baseline.
			time.Sleep(150 * time.Millisecond)

			// When an indexed file changes and an excluded one is written
			writeFile(t, filepath.Join(root, "bin", "Gen.cs"), "generated")
			writeFile(t, filepath.Join(root, "src", "Grades.cs"), "class Grades { double Average; }")

			// Then a batch naming the source file arrives
			deadline := time.After(5 * time.Second)
			for {
				select {
				case batch, ok := <-w.Events():
					require.True(t, ok)
					for _, e := range batch {
						assert.NotContains(t, e.Path, "bin/")
						if e.Path == "src/Grades.cs" {
							return
						}
					}
				case <-deadline:
					t.Fatal("no event for src/Grades.cs")
				}
			}
		})
	}
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New(Options{}, logging.Discard())
	assert.Error(t, err)
}

func TestReindexer_FoldsQueuedBatches(t *testing.T) {
	// Given three batches queued before the reindexer starts
	events := make(chan []FileEvent, 4)
	events <- []FileEvent{ev("a.cs", OpModify)}
	events <- []FileEvent{ev("b.cs", OpModify)}
	events <- []FileEvent{ev("c.cs", OpCreate)}
	close(events)

	var calls atomic.Int32
	r := NewReindexer(events, func(context.Context) error {
		calls.Add(1)
		return nil
	}, logging.Discard())

	// When it runs
	r.Run(context.Background())

	// Then they are handled by a single rebuild
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, r.Runs)
}

func TestReindexer_KeepsRunningAfterFailure(t *testing.T) {
	events := make(chan []FileEvent)
	called := make(chan struct{}, 2)
	var calls atomic.Int32
	r := NewReindexer(events, func(context.Context) error {
		defer func() { called <- struct{}{} }()
		if calls.Add(1) == 1 {
			return errors.New("disk busy")
		}
		return nil
	}, logging.Discard())

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()
	events <- []FileEvent{ev("a.cs", OpModify)}
	<-called
	events <- []FileEvent{ev("b.cs", OpModify)}
	<-called
	close(events)
	<-done

	assert.Equal(t, int32(2), calls.Load())
}

func TestAdapt(t *testing.T) {
	fn := Adapt(func(context.Context) (int, error) { return 7, errors.New("x") })
	assert.EqualError(t, fn(context.Background()), "x")
}
