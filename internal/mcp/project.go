package mcp

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ProjectInfo describes the indexed project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// ProjectDetector detects project metadata from manifest files in the root.
type ProjectDetector struct {
	rootPath string
	logger   *slog.Logger
}

// NewProjectDetector creates a new project detector.
func NewProjectDetector(rootPath string, logger *slog.Logger) *ProjectDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectDetector{rootPath: rootPath, logger: logger}
}

// Detect returns project information. Detection order: solution file,
// project file, go.mod, package.json, then the directory name.
func (d *ProjectDetector) Detect() *ProjectInfo {
	info := &ProjectInfo{
		RootPath: d.rootPath,
		Name:     filepath.Base(d.rootPath),
		Type:     "unknown",
	}

	detectors := []struct {
		kind string
		fn   func() string
	}{
		{"dotnet", func() string { return d.firstStem("*.sln") }},
		{"dotnet", func() string { return d.firstStem("*.csproj") }},
		{"go", d.detectGoMod},
		{"node", d.detectPackageJSON},
	}
	for _, det := range detectors {
		if name := det.fn(); name != "" {
			info.Name = name
			info.Type = det.kind
			d.logger.Debug("project_detected", slog.String("name", name), slog.String("type", det.kind))
			return info
		}
	}
	return info
}

// firstStem returns the name without extension of the first file matching
// pattern in the root, in lexical order.
func (d *ProjectDetector) firstStem(pattern string) string {
	matches, err := filepath.Glob(filepath.Join(d.rootPath, pattern))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	base := filepath.Base(matches[0])
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// detectGoMod returns the last segment of the module path.
func (d *ProjectDetector) detectGoMod() string {
	file, err := os.Open(filepath.Join(d.rootPath, "go.mod"))
	if err != nil {
		return ""
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if mod, ok := strings.CutPrefix(line, "module "); ok {
			return path.Base(strings.Trim(strings.TrimSpace(mod), `"`))
		}
	}
	return ""
}

// detectPackageJSON returns the package name without its scope.
func (d *ProjectDetector) detectPackageJSON() string {
	data, err := os.ReadFile(filepath.Join(d.rootPath, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	name := pkg.Name
	if strings.HasPrefix(name, "@") {
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
	}
	return name
}
