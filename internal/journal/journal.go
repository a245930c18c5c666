package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/model"
)

// Session is one download run for one company
type Session struct {
	ID        uuid.UUID              `json:"id"`
	CompanyID string                 `json:"company_id"`
	Year      int                    `json:"year"`
	StartedAt time.Time              `json:"started_at"`
	Records   []model.DownloadRecord `json:"records"`
	Summary   Summary                `json:"summary"`
}

// Summary counts session outcomes by status
type Summary struct {
	Success    int `json:"success"`
	Skipped    int `json:"skipped"`
	Suspicious int `json:"suspicious"`
	Failed     int `json:"failed"`
}

// NewSession creates a session with a fresh id and tallied summary
func NewSession(companyID string, year int, records []model.DownloadRecord, startedAt time.Time) Session {
	s := Session{
		ID:        uuid.New(),
		CompanyID: companyID,
		Year:      year,
		StartedAt: startedAt,
		Records:   records,
	}
	for _, r := range records {
		switch r.Status {
		case model.DownloadSuccess:
			s.Summary.Success++
		case model.DownloadSkipped:
			s.Summary.Skipped++
		case model.DownloadSuspicious:
			s.Summary.Suspicious++
		default:
			s.Summary.Failed++
		}
	}
	return s
}

// Store persists download sessions
type Store interface {
	Record(ctx context.Context, s Session) error
	// History returns a company's sessions, oldest first
	History(ctx context.Context, companyID string) ([]Session, error)
	Close() error
}

// Open returns the configured backend. The file backend keeps its journals
// next to the downloads.
func Open(ctx context.Context, cfg model.JournalConfig, downloadsDir string, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(downloadsDir), nil
	case "postgres":
		return NewPostgresStore(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}
