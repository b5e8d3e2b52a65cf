package output

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codechat/internal/chat"
)

func TestWriter_StatusLines(t *testing.T) {
	// Given a plain writer
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	// When printing each kind of status
	w.Success("Index complete")
	w.Warningf("%d files skipped", 2)
	w.Error("Failed to connect")
	w.Status("", "indented")

	// Then each line carries its marker and no escape codes
	assert.Equal(t, "✓ Index complete\n! 2 files skipped\n✗ Failed to connect\n   indented\n", buf.String())
	assert.False(t, w.Color())
}

func TestNew_NonTerminalIsPlain(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)
	assert.False(t, w.Color())
	assert.False(t, IsTerminal(buf))
}

func TestIsTerminal_RegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f))
}

func TestWriter_CodePlainIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)
	w.Code("class Grades {\n}\n")
	assert.Equal(t, "\n  class Grades {\n  }\n\n", buf.String())
}

func TestWriter_Answer(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Answer(&chat.Response{
		Answer:            "Grades are averaged in GradeService.",
		Sources:           []chat.Source{{FilePath: "src/GradeService.cs", Score: 0.5}},
		FollowUpQuestions: []string{"Where are grades stored?"},
		RequestID:         "abc",
		DurationMs:        42,
		FromCache:         true,
	})

	out := buf.String()
	assert.Contains(t, out, "Grades are averaged in GradeService.\n")
	assert.Contains(t, out, "Sources\n  1. src/GradeService.cs (0.50)\n")
	assert.Contains(t, out, "  - Where are grades stored?\n")
	assert.Contains(t, out, "request abc, 42ms, cached")
}

func TestWriter_Sources(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Sources(nil)
	assert.Contains(t, buf.String(), "No matching code found")

	buf.Reset()
	w.Sources([]chat.Source{{FilePath: "src/Grades.cs", CodeSnippet: "class Grades {}", Score: 1}})
	assert.Contains(t, buf.String(), "1. src/Grades.cs\n")
	assert.Contains(t, buf.String(), "score:")
	assert.Contains(t, buf.String(), "  class Grades {}\n")
}

func TestColorStyles_RenderText(t *testing.T) {
	s := ColorStyles()
	assert.Contains(t, s.Header.Render("Sources"), "Sources")
	assert.Equal(t, "x", PlainStyles().Header.Render("x"))
}
