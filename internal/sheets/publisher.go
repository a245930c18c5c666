package sheets

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/matrix"
	"github.com/ppiankov/mopscov/internal/model"
)

// Publisher delivers a coverage matrix somewhere and returns where it went
type Publisher interface {
	Publish(ctx context.Context, m *matrix.Matrix, stats model.CoverageStats) (string, error)
}

// MatrixWriter writes the matrix CSV and its metadata sidecar, returning
// both paths
type MatrixWriter interface {
	WriteMatrix(m *matrix.Matrix) (string, string, error)
}

// CSVPublisher writes the matrix as a local CSV file
type CSVPublisher struct {
	writer MatrixWriter
}

// NewCSVPublisher creates a CSV publisher
func NewCSVPublisher(writer MatrixWriter) *CSVPublisher {
	return &CSVPublisher{writer: writer}
}

// Publish writes the CSV and sidecar. The sidecar carries the matrix's own
// statistics.
func (p *CSVPublisher) Publish(ctx context.Context, m *matrix.Matrix, _ model.CoverageStats) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	csvPath, _, err := p.writer.WriteMatrix(m)
	if err != nil {
		return "", fmt.Errorf("csv publish: %w", err)
	}
	return csvPath, nil
}

// PublishWithFallback tries primary first and falls back when it is nil or
// fails. The error is non-nil only when both fail.
func PublishWithFallback(ctx context.Context, primary, fallback Publisher, m *matrix.Matrix, stats model.CoverageStats, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var primaryErr error
	if primary != nil {
		location, err := primary.Publish(ctx, m, stats)
		if err == nil {
			return location, nil
		}
		primaryErr = err
		logger.Warn("primary publish failed, falling back", zap.Error(err))
	}

	if fallback == nil {
		return "", primaryErr
	}
	location, err := fallback.Publish(ctx, m, stats)
	if err != nil {
		return "", errors.Join(primaryErr, err)
	}
	return location, nil
}
