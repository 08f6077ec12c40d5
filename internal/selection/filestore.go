package selection

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileName holds the persisted selection, the durable cookie-equivalent.
const FileName = "selected-model"

// FileStore persists the selected model id as a plain file.
type FileStore struct {
	path string
}

// NewFileStore stores the selection under dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, FileName)}
}

// Path reports the backing file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(id string) error {
	return os.WriteFile(s.path, []byte(id+"\n"), 0o644)
}

// Load returns the stored id, or empty when nothing was persisted yet.
func (s *FileStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Watch feeds external writes of the selection file into the machine as
// confirmations, so a value persisted outside this session (another process,
// a restored state dir) wins over stale optimism. Returns a stop function.
func (s *FileStore) Watch(m *Machine, log zerolog.Logger) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and atomic writers replace the file.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != s.path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				id, err := s.Load()
				if err != nil || id == "" {
					continue
				}
				if id != m.Displayed() {
					log.Debug().Str("model_id", id).Msg("selection confirmed externally")
					m.ConfirmExternal(id)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Debug().Err(err).Msg("selection watcher error")
			}
		}
	}()
	return func() { _ = w.Close() }, nil
}
