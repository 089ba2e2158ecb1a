package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"clipline/internal/model"
	"clipline/internal/pipelineerr"
)

// Store guards a single run's checkpoint file with an on-disk lock, so at
// most one process may hold it open at a time.
type Store struct {
	dir  string
	lock *flock.Flock

	mu     sync.Mutex
	runID  model.RunID
	path   string
	held   bool
}

// NewStore builds a checkpoint store rooted at dir. dir is created lazily on
// the first Open call.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) checkpointPath(runID model.RunID) string {
	return filepath.Join(s.dir, string(runID)+".json")
}

func (s *Store) lockPath(runID model.RunID) string {
	return filepath.Join(s.dir, string(runID)+".lock")
}

// Open acquires exclusive ownership of runID's checkpoint file for this
// process. It returns a corrupt_state-classified error if another process
// already holds the lock.
func (s *Store) Open(runID model.RunID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		return fmt.Errorf("checkpoint store already open for run %s", s.runID)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	lock := flock.New(s.lockPath(runID))
	ok, err := lock.TryLock()
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.ErrCorruptState, "", "checkpoint.open", "acquire lock", err)
	}
	if !ok {
		return pipelineerr.Wrap(pipelineerr.ErrCorruptState, "", "checkpoint.open", "already_locked: run "+string(runID)+" is open in another process", nil)
	}

	s.runID = runID
	s.path = s.checkpointPath(runID)
	s.lock = lock
	s.held = true
	return nil
}

// Close releases the run lock. It does not delete the checkpoint file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.held {
		return nil
	}
	err := s.lock.Unlock()
	s.held = false
	s.lock = nil
	return err
}

// Save persists checkpoint atomically, rejecting a save whose stage comes
// before the stored checkpoint's stage. CompletedItems is not compared with
// the stored checkpoint: a save within the same stage may replace the list
// with a shorter one.
func (s *Store) Save(checkpoint model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.held {
		return errors.New("checkpoint store not open")
	}
	if checkpoint.RunID != s.runID {
		return fmt.Errorf("checkpoint run id %s does not match open run %s", checkpoint.RunID, s.runID)
	}

	if existing, err := s.loadLocked(); err == nil && existing != nil {
		if stageIndex(checkpoint.Stage) < stageIndex(existing.Stage) {
			return fmt.Errorf("stage cursor regression: %s -> %s", existing.Stage, checkpoint.Stage)
		}
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return writeAtomic(s.path, data)
}

// Load returns the latest persisted checkpoint for the open run, or nil if
// none has been saved yet.
func (s *Store) Load() (*model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.held {
		return nil, errors.New("checkpoint store not open")
	}
	return s.loadLocked()
}

func (s *Store) loadLocked() (*model.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var out model.Checkpoint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.ErrCorruptState, "", "checkpoint.load", "parse checkpoint file", err)
	}
	return &out, nil
}

// Delete removes the checkpoint file for the open run. Called on successful
// run completion so a finished run leaves no resumable state behind.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.held {
		return errors.New("checkpoint store not open")
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// ListIncomplete scans dir for checkpoint files belonging to runs that have
// not reached a terminal stage. It does not require any run to be open.
func ListIncomplete(dir string) ([]model.Checkpoint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint directory: %w", err)
	}

	var out []model.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var cp model.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		if !cp.Stage.IsTerminal() {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func stageIndex(stage model.Stage) int {
	for i, s := range model.Sequence {
		if s == stage {
			return i
		}
	}
	if stage == model.StageCompleted || stage == model.StageFailed || stage == model.StageCanceled {
		return len(model.Sequence)
	}
	return -1
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp checkpoint: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
