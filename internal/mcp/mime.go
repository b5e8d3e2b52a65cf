package mcp

import (
	"path"
	"strings"
)

// fileType pairs a MIME type with the language hint used for code fences.
type fileType struct {
	mime  string
	fence string
}

var fileTypes = map[string]fileType{
	// .NET
	".cs":     {"text/x-csharp", "csharp"},
	".csx":    {"text/x-csharp", "csharp"},
	".cshtml": {"text/x-cshtml", "cshtml"},
	".razor":  {"text/x-razor", "razor"},
	".csproj": {"application/xml", "xml"},
	".sln":    {"text/plain", "text"},
	".fs":     {"text/x-fsharp", "fsharp"},
	".vb":     {"text/x-vb", "vb"},

	// Go
	".go":  {"text/x-go", "go"},
	".mod": {"text/x-go.mod", "text"},

	// TypeScript/JavaScript
	".ts":  {"text/typescript", "typescript"},
	".tsx": {"text/typescript", "tsx"},
	".js":  {"text/javascript", "javascript"},
	".jsx": {"text/javascript", "jsx"},
	".mjs": {"text/javascript", "javascript"},

	// Python
	".py": {"text/x-python", "python"},

	// Web
	".html": {"text/html", "html"},
	".htm":  {"text/html", "html"},
	".css":  {"text/css", "css"},
	".scss": {"text/x-scss", "scss"},

	// Data
	".json":   {"application/json", "json"},
	".yaml":   {"text/x-yaml", "yaml"},
	".yml":    {"text/x-yaml", "yaml"},
	".xml":    {"text/xml", "xml"},
	".config": {"text/xml", "xml"},
	".toml":   {"text/x-toml", "toml"},

	// Documentation
	".md":  {"text/markdown", "markdown"},
	".txt": {"text/plain", "text"},

	// Shell and SQL
	".sh":  {"text/x-sh", "bash"},
	".ps1": {"text/x-powershell", "powershell"},
	".sql": {"text/x-sql", "sql"},

	// Other compiled languages
	".c":    {"text/x-c", "c"},
	".h":    {"text/x-c", "c"},
	".cpp":  {"text/x-c++", "cpp"},
	".hpp":  {"text/x-c++", "cpp"},
	".java": {"text/x-java", "java"},
	".rs":   {"text/x-rust", "rust"},
}

var specialFilenames = map[string]fileType{
	"Dockerfile":            {"text/x-dockerfile", "dockerfile"},
	"Makefile":              {"text/x-makefile", "makefile"},
	"Directory.Build.props": {"application/xml", "xml"},
}

func lookupType(p string) (fileType, bool) {
	p = strings.ReplaceAll(p, "\\", "/")
	if ft, ok := specialFilenames[path.Base(p)]; ok {
		return ft, true
	}
	ft, ok := fileTypes[strings.ToLower(path.Ext(p))]
	return ft, ok
}

// MimeTypeForPath returns the MIME type for a file path, or "text/plain"
// for unknown types.
func MimeTypeForPath(p string) string {
	if ft, ok := lookupType(p); ok {
		return ft.mime
	}
	return "text/plain"
}

// FenceLanguage returns the markdown code fence language for a path.
func FenceLanguage(p string) string {
	if ft, ok := lookupType(p); ok {
		return ft.fence
	}
	return "text"
}
