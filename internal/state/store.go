package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/ratewatch/internal/reducer"
)

// Sentinel errors distinguishing the two ways a read can fail. Callers use
// errors.Is: a missing file is routine on first run, invalid content is not.
var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid content")
)

// file names within the state directory
const (
	StateFile = "state.json"
	PIDFile   = "ratewatch.pid"
	DiagFile  = "diagnostics.ndjson"
	LogFile   = "daemon.log"
)

const startupPollInterval = 100 * time.Millisecond

// DefaultStartupTimeout is how long [Store.WaitForPollerStart] waits for the
// daemon's startup handshake before giving up.
const DefaultStartupTimeout = 5 * time.Second

// Store reads and writes the shared files of one run's state directory.
// A Store carries no open handles and is safe to use from any process.
type Store struct {
	dir string
}

// NewStore returns a [Store] rooted at dir. The directory is not created
// until [Store.EnsureDir] is called.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory path.
func (s *Store) Dir() string { return s.dir }

// StatePath returns the path of the state JSON file.
func (s *Store) StatePath() string { return filepath.Join(s.dir, StateFile) }

// PIDPath returns the path of the daemon PID file.
func (s *Store) PIDPath() string { return filepath.Join(s.dir, PIDFile) }

// DiagPath returns the path of the diagnostics JSONL file.
func (s *Store) DiagPath() string { return filepath.Join(s.dir, DiagFile) }

// LogPath returns the path of the daemon log file.
func (s *Store) LogPath() string { return filepath.Join(s.dir, LogFile) }

// EnsureDir creates the state directory if it does not exist.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	return nil
}

// Save replaces the state file atomically: marshal, write a temp file
// alongside, rename into place. A reader in another process never observes
// a partial document, and a failed save leaves no temp file behind.
func (s *Store) Save(st *reducer.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	data = append(data, '\n')

	tmp := s.StatePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.StatePath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Load reads and validates the persisted state. A missing file is reported
// via [ErrNotFound]; undecodable JSON or content failing structural
// validation via [ErrInvalid].
func (s *Store) Load() (*reducer.State, error) {
	data, err := os.ReadFile(s.StatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("state file %s: %w", s.StatePath(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st reducer.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("state file %s: %w: %v", s.StatePath(), ErrInvalid, err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("state file %s: %w: %v", s.StatePath(), ErrInvalid, err)
	}
	return &st, nil
}

// WritePID records the detached daemon's PID for a later stop command.
func (s *Store) WritePID(pid int) error {
	if err := os.WriteFile(s.PIDPath(), []byte(strconv.Itoa(pid)+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// ReadPID returns the recorded daemon PID, with the same [ErrNotFound] and
// [ErrInvalid] discipline as [Store.Load].
func (s *Store) ReadPID() (int, error) {
	data, err := os.ReadFile(s.PIDPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("pid file %s: %w", s.PIDPath(), ErrNotFound)
		}
		return 0, fmt.Errorf("failed to read pid file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s: %w: %q", s.PIDPath(), ErrInvalid, raw)
	}
	return pid, nil
}

// RemovePID deletes the PID file. A missing file is not an error.
func (s *Store) RemovePID() error {
	if err := os.Remove(s.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}

// WaitForPollerStart blocks until the state file shows the daemon's startup
// handshake (poller_started_at_ts set), polling every 100ms up to timeout.
// The timeout error names the last observed condition, so CI logs show
// whether the daemon never wrote state at all or wrote it without the
// handshake.
func (s *Store) WaitForPollerStart(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultStartupTimeout
	}

	deadline := time.Now().Add(timeout)
	last := "state file not found"
	for {
		st, err := s.Load()
		switch {
		case err == nil && st.PollerStartedAt > 0:
			return nil
		case err == nil:
			last = "state file present but poller has not started"
		case errors.Is(err, ErrNotFound):
			last = "state file not found"
		default:
			last = err.Error()
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("daemon did not start within %s: %s", timeout, last)
		}
		time.Sleep(startupPollInterval)
	}
}
