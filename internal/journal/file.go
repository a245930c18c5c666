package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const metadataFile = "metadata.json"

// companyJournal is the on-disk shape of <downloads>/<company>/metadata.json
type companyJournal struct {
	CompanyID   string             `json:"company_id"`
	Downloads   map[string]Session `json:"downloads"` // Keyed by session id
	LastUpdated time.Time          `json:"last_updated"`
}

// FileStore keeps one metadata.json per company directory
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore creates a store rooted at the downloads directory
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

func (s *FileStore) path(companyID string) string {
	return filepath.Join(s.dir, companyID, metadataFile)
}

// Record adds a session to the company's journal
func (s *FileStore) Record(ctx context.Context, session Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.load(session.CompanyID)
	if err != nil {
		return err
	}
	j.Downloads[session.ID.String()] = session
	j.LastUpdated = s.now()

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	path := s.path(session.CompanyID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// History returns the company's sessions, oldest first
func (s *FileStore) History(ctx context.Context, companyID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	j, err := s.load(companyID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(j.Downloads))
	for _, session := range j.Downloads {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(a, b int) bool {
		if !sessions[a].StartedAt.Equal(sessions[b].StartedAt) {
			return sessions[a].StartedAt.Before(sessions[b].StartedAt)
		}
		return sessions[a].ID.String() < sessions[b].ID.String()
	})
	return sessions, nil
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load(companyID string) (*companyJournal, error) {
	j := &companyJournal{CompanyID: companyID, Downloads: make(map[string]Session)}

	data, err := os.ReadFile(s.path(companyID))
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	if err := json.Unmarshal(data, j); err != nil {
		return nil, fmt.Errorf("parse journal %s: %w", s.path(companyID), err)
	}
	if j.Downloads == nil {
		j.Downloads = make(map[string]Session)
	}
	return j, nil
}
