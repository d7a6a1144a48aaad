package source

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UsageSuffix is the file-name suffix of persisted usage files.
const UsageSuffix = ".usage.json"

// TranscriptSuffix is the file-name suffix of session transcripts.
const TranscriptSuffix = ".jsonl"

// ProjectDirName encodes an absolute working directory the way the wrapped
// client names its per-project state directory: every path separator
// becomes a hyphen.
//
//	"/home/dev/projects/gitlore" -> "-home-dev-projects-gitlore"
func ProjectDirName(cwd string) string {
	name := strings.ReplaceAll(cwd, "/", "-")
	if filepath.Separator != '/' {
		name = strings.ReplaceAll(name, string(filepath.Separator), "-")
	}
	return name
}

// ProjectDir returns the state directory for cwd under claudeDir.
func ProjectDir(claudeDir, cwd string) string {
	return filepath.Join(claudeDir, "projects", ProjectDirName(cwd))
}

// ScanDir walks the projects directory and discovers every usage file.
func ScanDir(claudeDir string) ([]DiscoveredFile, error) {
	projectsDir := filepath.Join(claudeDir, "projects")

	info, err := os.Stat(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return nil, err
	}

	var files []DiscoveredFile
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		found, err := scanProjectDir(filepath.Join(projectsDir, e.Name()))
		if err != nil {
			continue
		}
		files = append(files, found...)
	}
	sortNewestFirst(files)
	return files, nil
}

// ScanProject discovers the usage files of one working directory.
func ScanProject(claudeDir, cwd string) ([]DiscoveredFile, error) {
	files, err := scanProjectDir(ProjectDir(claudeDir, cwd))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sortNewestFirst(files)
	return files, nil
}

func scanProjectDir(dir string) ([]DiscoveredFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	projectDir := filepath.Base(dir)
	project := decodeProjectName(projectDir)

	var files []DiscoveredFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, UsageSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue //nolint:nilerr // file vanished between ReadDir and Info
		}

		sessionID := strings.TrimSuffix(name, UsageSuffix)
		_, statErr := os.Stat(filepath.Join(dir, sessionID+TranscriptSuffix))

		files = append(files, DiscoveredFile{
			Path:          filepath.Join(dir, name),
			Project:       project,
			ProjectDir:    projectDir,
			SessionID:     sessionID,
			ModTime:       info.ModTime(),
			HasTranscript: statErr == nil,
		})
	}
	return files, nil
}

func sortNewestFirst(files []DiscoveredFile) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
}

// ProjectName returns a display name for a working directory.
func ProjectName(cwd string) string {
	return decodeProjectName(ProjectDirName(cwd))
}

// decodeProjectName extracts a human-readable project name from the encoded directory name.
// Absolute paths are encoded by replacing "/" with "-", so:
//
//	"-Users-dev-projects-gitlore" -> "gitlore"
//	"-Users-dev-projects-my-cool-project" -> "my-cool-project"
//
// We find the last known path component ("projects", "repos", "src", "code", ...)
// and take everything after it. Falls back to the last non-empty segment.
func decodeProjectName(dirName string) string {
	parts := strings.Split(dirName, "-")

	knownParents := map[string]bool{
		"projects": true, "repos": true, "src": true,
		"code": true, "workspace": true, "dev": true,
	}

	for i := len(parts) - 2; i >= 0; i-- {
		if knownParents[strings.ToLower(parts[i])] {
			name := strings.Join(parts[i+1:], "-")
			if name != "" {
				return name
			}
		}
	}

	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}

	return dirName
}
