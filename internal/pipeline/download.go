package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/mopscov/internal/extract"
	"github.com/ppiankov/mopscov/internal/model"
)

const (
	// An existing file above this size is assumed complete
	skipExistingAbove = 100 * 1024
	// A saved PDF below this size is probably an error page
	suspiciousBelow = 1000
)

var pdfMagic = []byte("%PDF")

// Downloader saves report PDFs to <dir>/<company>/<YYYYQQ_ID_TYPE>.pdf
type Downloader struct {
	fetcher     *Fetcher
	dir         string
	origin      string
	concurrency int
	logger      *zap.Logger
}

// NewDownloader creates a downloader. origin is the host serving /pdf/ paths.
func NewDownloader(fetcher *Fetcher, dir, origin string, concurrency int, logger *zap.Logger) *Downloader {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher:     fetcher,
		dir:         dir,
		origin:      origin,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Path returns where a candidate is stored
func (d *Downloader) Path(c model.ReportCandidate) string {
	artifact := model.Artifact{Year: c.Year, Quarter: c.Quarter, CompanyID: c.CompanyID, ReportType: c.ReportType}
	return filepath.Join(d.dir, c.CompanyID, artifact.Filename())
}

// DownloadAll downloads every candidate with bounded concurrency and returns
// one record per candidate in input order. Individual failures are recorded,
// not returned; the error is non-nil only when ctx was cancelled.
func (d *Downloader) DownloadAll(ctx context.Context, candidates []model.ReportCandidate) ([]model.DownloadRecord, error) {
	records := make([]model.DownloadRecord, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, c := range candidates {
		g.Go(func() error {
			records[i] = d.Download(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return records, ctx.Err()
}

// Download fetches one candidate: the step=9 page first, then the PDF it
// links to on the download origin
func (d *Downloader) Download(ctx context.Context, c model.ReportCandidate) model.DownloadRecord {
	path := d.Path(c)
	record := model.DownloadRecord{
		Filename:   filepath.Base(path),
		Quarter:    c.Key().String(),
		ReportType: c.ReportType,
		Path:       path,
	}
	log := d.logger.With(zap.String("company_id", c.CompanyID), zap.String("filename", record.Filename))

	if info, err := os.Stat(path); err == nil && info.Size() > skipExistingAbove {
		record.Status = model.DownloadSkipped
		record.Size = info.Size()
		log.Debug("already downloaded", zap.Int64("size", info.Size()))
		return record
	}

	fail := func(err error) model.DownloadRecord {
		record.Status = model.DownloadFailed
		record.Error = err.Error()
		log.Warn("download failed", zap.Error(err))
		return record
	}

	if c.DownloadReference == "" {
		return fail(fmt.Errorf("no download reference"))
	}

	pdfURL, err := d.resolvePDF(ctx, c.DownloadReference)
	if err != nil {
		return fail(err)
	}

	result, err := d.fetcher.Download(ctx, pdfURL)
	if err != nil {
		return fail(fmt.Errorf("download pdf: %w", err))
	}

	if err := writeFileAtomic(path, result.Body); err != nil {
		return fail(err)
	}

	record.Size = int64(len(result.Body))
	record.Status = model.DownloadSuccess
	switch {
	case record.Size < suspiciousBelow:
		record.Status = model.DownloadSuspicious
		record.Error = fmt.Sprintf("file smaller than %d bytes", suspiciousBelow)
	case !bytes.HasPrefix(result.Body, pdfMagic):
		record.Status = model.DownloadSuspicious
		record.Error = "missing %PDF header"
	}

	if record.Status == model.DownloadSuspicious {
		log.Warn("suspicious download", zap.Int64("size", record.Size), zap.String("reason", record.Error))
	} else {
		log.Info("downloaded", zap.Int64("size", record.Size))
	}
	return record
}

// resolvePDF turns a download reference into the PDF URL. Direct .pdf
// references are used as-is; anything else is a step=9 page to scrape.
func (d *Downloader) resolvePDF(ctx context.Context, reference string) (string, error) {
	if u, err := url.Parse(reference); err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return reference, nil
	}

	page, err := d.fetcher.FetchWithRetry(ctx, reference)
	if err != nil {
		return "", fmt.Errorf("download page: %w", err)
	}

	link, err := extract.FindPDFLink(DecodePage(page.Body, page.ContentType), d.origin)
	if err != nil {
		return "", fmt.Errorf("download page: %w", err)
	}
	return link, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}
