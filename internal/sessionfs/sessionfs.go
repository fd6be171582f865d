// Package sessionfs manages the per-session directory tree: workspace,
// raw agent transcript, structured output, and the shared skills symlink.
// Every operation validates the session id and resolves paths defensively
// against traversal before touching the filesystem.
package sessionfs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/extractumio/agentum/internal/apperr"
)

// idPattern is the documented session id shape: YYYYMMDD_HHMMSS_<8 hex chars>.
var idPattern = regexp.MustCompile(`^\d{8}_\d{6}_[a-f0-9]{8}$`)

const (
	sessionInfoFile = "session_info.json"
	agentLogFile    = "agent.jsonl"
	workspaceDir    = "workspace"
	outputFile      = "output.yaml"
	skillsLink      = "skills"
)

// ValidID reports whether id matches the documented session id regex.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// FS manages session directories rooted at a single sessions_root.
type FS struct {
	root      string
	skillsDir string
}

// New creates an FS rooted at root. skillsDir, if non-empty, is symlinked
// into every session's workspace as "skills".
func New(root, skillsDir string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperr.Filesystem("resolve sessions root", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperr.Filesystem("create sessions root", err)
	}
	return &FS{root: abs, skillsDir: skillsDir}, nil
}

// Root returns the absolute sessions root directory.
func (f *FS) Root() string {
	return f.root
}

// resolve validates id and returns the absolute path of a session-relative
// component, guaranteeing the result is a descendant of the sessions root.
func (f *FS) resolve(id string, parts ...string) (string, error) {
	if !ValidID(id) {
		return "", apperr.Validation(fmt.Sprintf("invalid session id %q", id))
	}
	joined := append([]string{f.root, id}, parts...)
	candidate := filepath.Join(joined...)

	// Never follow symlinks when establishing containment: Clean does not
	// resolve them, so compare against the lexically cleaned root.
	rel, err := filepath.Rel(f.root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.Validation(fmt.Sprintf("session path escapes sessions root: %q", id))
	}
	return candidate, nil
}

// Dir returns the absolute path of the session's top-level directory.
func (f *FS) Dir(id string) (string, error) {
	return f.resolve(id)
}

// Workspace returns the absolute path of the session's workspace directory.
func (f *FS) Workspace(id string) (string, error) {
	return f.resolve(id, workspaceDir)
}

// OutputFile returns the absolute path of the structured output file.
func (f *FS) OutputFile(id string) (string, error) {
	return f.resolve(id, workspaceDir, outputFile)
}

// LogFile returns the absolute path of the raw agent stdout transcript.
func (f *FS) LogFile(id string) (string, error) {
	return f.resolve(id, agentLogFile)
}

// SessionInfoFile returns the absolute path of the machine-readable
// session mirror consumed by the agent.
func (f *FS) SessionInfoFile(id string) (string, error) {
	return f.resolve(id, sessionInfoFile)
}

// WorkspaceFile resolves a workspace-relative path for the file-download
// endpoint, rejecting absolute paths and any ".." traversal component.
func (f *FS) WorkspaceFile(id, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", apperr.Validation("path must be workspace-relative")
	}
	cleaned := filepath.Clean(relPath)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", apperr.Validation("path may not traverse outside the workspace")
	}
	return f.resolve(id, workspaceDir, cleaned)
}

// Create allocates the on-disk tree for a new session: the session
// directory itself, the workspace subdirectory, and (if configured) the
// read-only skills symlink. Called as side-effect #1 of the lifecycle
// manager's two-phase create; on any subsequent failure the caller must
// invoke Destroy to roll back.
func (f *FS) Create(id string) error {
	dir, err := f.Dir(id)
	if err != nil {
		return err
	}
	ws, err := f.Workspace(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return apperr.Filesystem("create session directory", err)
	}
	_ = dir

	if err := f.installSkillsSymlink(id); err != nil {
		return err
	}
	return nil
}

// installSkillsSymlink creates a relative symlink from the workspace to
// the shared skills tree. A missing configured skills directory is not an
// error: the symlink is simply omitted.
func (f *FS) installSkillsSymlink(id string) error {
	if f.skillsDir == "" {
		return nil
	}
	ws, err := f.Workspace(id)
	if err != nil {
		return err
	}
	target, err := filepath.Abs(f.skillsDir)
	if err != nil {
		return apperr.Filesystem("resolve skills directory", err)
	}
	if _, err := os.Stat(target); err != nil {
		return nil
	}
	rel, err := filepath.Rel(ws, target)
	if err != nil {
		rel = target
	}
	link := filepath.Join(ws, skillsLink)
	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	if err := os.Symlink(rel, link); err != nil {
		return apperr.Filesystem("install skills symlink", err)
	}
	return nil
}

// WriteSessionInfo writes the machine-readable session mirror consumed by
// the agent process.
func (f *FS) WriteSessionInfo(id string, data []byte) error {
	path, err := f.SessionInfoFile(id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.Filesystem("write session_info.json", err)
	}
	return nil
}

// ParsedOutput is the structured content of workspace/output.yaml.
type ParsedOutput struct {
	Output      string   `yaml:"output"`
	Error       string   `yaml:"error"`
	Comments    string   `yaml:"comments"`
	ResultFiles []string `yaml:"result_files"`
	Status      string   `yaml:"status"`
}

// ParseOutput reads and parses workspace/output.yaml. A missing file is
// not an error: it returns a zero-value ParsedOutput, since the agent may
// not have written one yet or may have completed without structured output.
func (f *FS) ParseOutput(id string) (*ParsedOutput, error) {
	path, err := f.OutputFile(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ParsedOutput{}, nil
		}
		return nil, apperr.Filesystem("read output.yaml", err)
	}
	var parsed ParsedOutput
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.Filesystem("parse output.yaml", err)
	}
	return &parsed, nil
}

// Destroy removes the session directory tree. Used only by the two-phase
// creation rollback when the metadata store write fails after Create has
// already run.
func (f *FS) Destroy(id string) error {
	dir, err := f.Dir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return apperr.Filesystem("destroy session directory", err)
	}
	return nil
}

// Exists reports whether the session directory exists, for the §8
// create-atomicity invariant (row exists iff directory exists).
func (f *FS) Exists(id string) bool {
	dir, err := f.Dir(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
