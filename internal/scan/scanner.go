// Package scan rebuilds report candidates from a downloads directory laid out
// as <dir>/<company_id>/YYYYQQ_COMPANYID_TYPE.pdf.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/model"
)

// Result is what a scan found
type Result struct {
	Candidates map[string][]model.ReportCandidate
	Files      int      // PDFs looked at
	Skipped    []string // Paths whose names did not parse or sit in the wrong company dir
}

// Scanner walks downloaded artifacts
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a scanner
func NewScanner(logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{logger: logger}
}

// Scan reads every company directory under dir. Unparseable names are
// skipped and reported, never fatal. A missing dir yields an empty result.
func (s *Scanner) Scan(dir string) (*Result, error) {
	result := &Result{Candidates: make(map[string][]model.ReportCandidate)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("downloads directory does not exist", zap.String("dir", dir))
			return result, nil
		}
		return nil, fmt.Errorf("failed to read downloads dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		companyID := entry.Name()
		if model.ValidateCompanyID(companyID) != nil {
			continue
		}

		companyDir := filepath.Join(dir, companyID)
		files, err := os.ReadDir(companyDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", companyDir, err)
		}

		for _, f := range files {
			if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".pdf") {
				continue
			}
			result.Files++
			path := filepath.Join(companyDir, f.Name())

			artifact, err := model.ParseArtifactName(f.Name())
			if err != nil {
				s.logger.Debug("artifact skipped", zap.String("path", path), zap.Error(err))
				result.Skipped = append(result.Skipped, path)
				continue
			}
			if artifact.CompanyID != companyID {
				s.logger.Debug("artifact in wrong company dir", zap.String("path", path))
				result.Skipped = append(result.Skipped, path)
				continue
			}

			candidate := artifact.Candidate()
			if info, err := f.Info(); err == nil {
				candidate.RawSize = info.Size()
			}
			result.Candidates[companyID] = append(result.Candidates[companyID], candidate)
		}

		list := result.Candidates[companyID]
		sort.Slice(list, func(i, j int) bool { return list[i].Filename < list[j].Filename })
	}

	s.logger.Info("downloads scanned",
		zap.String("dir", dir),
		zap.Int("companies", len(result.Candidates)),
		zap.Int("files", result.Files),
		zap.Int("skipped", len(result.Skipped)))

	return result, nil
}
