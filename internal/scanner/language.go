package scanner

import (
	"path/filepath"
	"strings"
)

// languageMap maps file extensions to language names used by the chunker.
var languageMap = map[string]string{
	".go":   "go",
	".cs":   "csharp",
	".ts":   "typescript",
	".tsx":  "tsx",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".py":   "python",
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".scss": "css",
	".json": "json",
	".sql":  "sql",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".xml":  "xml",
}

// DetectLanguage returns the language for a path, or "text".
func DetectLanguage(p string) string {
	if lang, ok := languageMap[strings.ToLower(filepath.Ext(p))]; ok {
		return lang
	}
	return "text"
}
