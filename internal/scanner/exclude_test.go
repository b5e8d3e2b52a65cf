package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"dir pattern matches dir anywhere", []string{"bin/"}, "src/App/bin", true, true},
		{"dir pattern matches files beneath", []string{"bin/"}, "src/bin/x.cs", false, true},
		{"dir pattern ignores same-named file", []string{"bin/"}, "src/bin", false, false},
		{"basename glob", []string{"*.min.js"}, "wwwroot/js/site.min.js", false, true},
		{"basename glob miss", []string{"*.min.js"}, "wwwroot/js/site.js", false, false},
		{"inner slash anchors", []string{"wwwroot/lib/"}, "src/wwwroot/lib", true, false},
		{"inner slash at root", []string{"wwwroot/lib/"}, "wwwroot/lib/a.js", false, true},
		{"double star prefix", []string{"**/wwwroot/lib/"}, "src/Web/wwwroot/lib/a.js", false, true},
		{"double star middle", []string{"src/**/gen"}, "src/a/b/gen", true, true},
		{"double star zero dirs", []string{"src/**/gen"}, "src/gen", true, true},
		{"leading slash anchors", []string{"/Archive"}, "old/Archive", true, false},
		{"leading slash root match", []string{"/Archive"}, "Archive/x.cs", false, true},
		{"negation reincludes", []string{"*.json", "!appsettings.json"}, "appsettings.json", false, false},
		{"question mark", []string{"file?.cs"}, "file1.cs", false, true},
		{"comment ignored", []string{"# bin/"}, "bin", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(tt.patterns...)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_BaseScoping(t *testing.T) {
	m := NewMatcher()
	m.Add("*.log", "Web")

	assert.True(t, m.Match("Web/debug.log", false))
	assert.False(t, m.Match("Api/debug.log", false))
	assert.False(t, m.Match("Web", true))
}

func TestMatcher_AddFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".gitignore")
	require.NoError(t, os.WriteFile(file, []byte("# build\nout/\n\n*.tmp\n"), 0o644))

	m := NewMatcher()
	require.NoError(t, m.AddFile(file, ""))

	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Match("out/a.cs", false))
	assert.True(t, m.Match("x/y.tmp", false))
	assert.Error(t, m.AddFile(filepath.Join(t.TempDir(), "missing"), ""))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "csharp", DetectLanguage("Controllers/A.CS"))
	assert.Equal(t, "tsx", DetectLanguage("a.tsx"))
	assert.Equal(t, "text", DetectLanguage("Makefile"))
}
