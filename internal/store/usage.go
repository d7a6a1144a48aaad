// Package store persists usage accounting: one JSON usage file per session
// next to the session transcript, and a SQLite ledger of every request.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/theirongolddev/cccost/internal/model"
	"github.com/theirongolddev/cccost/internal/source"
)

var (
	// ErrNoTranscript is returned by Save when the session has no transcript on disk.
	ErrNoTranscript = errors.New("session transcript not found")
	// ErrInvalidSession is returned for session ids that are empty or would escape the project dir.
	ErrInvalidSession = errors.New("invalid session id")
)

// UsageFiles locates and reads/writes the usage files of one working directory.
type UsageFiles struct {
	dir string
}

// NewUsageFiles returns the usage file store for cwd under claudeDir.
func NewUsageFiles(claudeDir, cwd string) *UsageFiles {
	return &UsageFiles{dir: source.ProjectDir(claudeDir, cwd)}
}

// Dir returns the project directory holding transcripts and usage files.
func (u *UsageFiles) Dir() string {
	return u.dir
}

// Path returns the usage file path for a session.
func (u *UsageFiles) Path(sessionID string) string {
	return filepath.Join(u.dir, sessionID+source.UsageSuffix)
}

// TranscriptPath returns the transcript path for a session.
func (u *UsageFiles) TranscriptPath(sessionID string) string {
	return filepath.Join(u.dir, sessionID+source.TranscriptSuffix)
}

// Load reads the usage file of a session.
func (u *UsageFiles) Load(sessionID string) (*model.UsageFile, error) {
	if err := validSession(sessionID); err != nil {
		return nil, err
	}
	return ReadUsageFile(u.Path(sessionID))
}

// Save overwrites the usage file of a session with f. Nothing is written
// unless the session transcript exists.
func (u *UsageFiles) Save(sessionID string, f *model.UsageFile) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	if _, err := os.Stat(u.TranscriptPath(sessionID)); err != nil {
		if os.IsNotExist(err) {
			return ErrNoTranscript
		}
		return fmt.Errorf("checking transcript: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding usage file: %w", err)
	}

	// Write to a temp file then rename so readers never see a partial file.
	tmp := filepath.Join(u.dir, fmt.Sprintf(".%s.%s.tmp", sessionID, uuid.New().String()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // usage files are not secret
		return fmt.Errorf("writing usage file: %w", err)
	}
	if err := os.Rename(tmp, u.Path(sessionID)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing usage file: %w", err)
	}
	return nil
}

// ReadUsageFile parses a usage file. A file with no models map yields an
// empty, non-nil map.
func ReadUsageFile(path string) (*model.UsageFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from the project dir
	if err != nil {
		return nil, err
	}

	var f model.UsageFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing usage file: %w", err)
	}
	if f.Models == nil {
		f.Models = make(map[string]*model.ModelAccumulator)
	}
	for name, acc := range f.Models {
		if acc == nil {
			delete(f.Models, name)
		}
	}
	return &f, nil
}

func validSession(sessionID string) error {
	if sessionID == "" || sessionID == "." || sessionID == ".." ||
		strings.ContainsAny(sessionID, `/\`) || strings.ContainsRune(sessionID, 0) {
		return ErrInvalidSession
	}
	return nil
}
