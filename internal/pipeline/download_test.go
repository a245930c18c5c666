package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/mopscov/internal/model"
)

// twseStub serves step=9 pages and the PDFs they link to
func twseStub(t *testing.T, pdfs map[string][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var pdfHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/server-java/t57sb01":
			name := r.URL.Query().Get("filename")
			if _, ok := pdfs[name]; !ok {
				_, _ = fmt.Fprint(w, "<html><body>檔案不存在</body></html>")
				return
			}
			_, _ = fmt.Fprintf(w, `<html><body><a href='/pdf/%s'>%s</a></body></html>`, name, name)
		case strings.HasPrefix(r.URL.Path, "/pdf/"):
			pdfHits.Add(1)
			body, ok := pdfs[strings.TrimPrefix(r.URL.Path, "/pdf/")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &pdfHits
}

func pdfBody(size int) []byte {
	return append([]byte("%PDF-1.4\n"), make([]byte, size)...)
}

func downloadCandidate(server *httptest.Server, filename string) model.ReportCandidate {
	a, err := model.ParseArtifactName(filename)
	if err != nil {
		panic(err)
	}
	c := a.Candidate()
	c.DownloadReference = fmt.Sprintf("%s/server-java/t57sb01?step=9&kind=A&co_id=%s&filename=%s", server.URL, a.CompanyID, filename)
	return c
}

func TestDownloader_DownloadAll(t *testing.T) {
	server, _ := twseStub(t, map[string][]byte{
		"202401_2330_A12.pdf": pdfBody(5000),
		"202402_2330_A12.pdf": []byte("%PDF tiny"),
		"202403_2330_A12.pdf": []byte("<html>error page that is long enough to pass the size floor" + strings.Repeat(" ", 2000) + "</html>"),
	})
	noSleep(t)

	dir := t.TempDir()
	d := NewDownloader(newTestFetcher(t), dir, server.URL, 2, nil)

	candidates := []model.ReportCandidate{
		downloadCandidate(server, "202401_2330_A12.pdf"),
		downloadCandidate(server, "202402_2330_A12.pdf"),
		downloadCandidate(server, "202403_2330_A12.pdf"),
		downloadCandidate(server, "202404_2330_A12.pdf"), // No PDF link on its page
	}

	records, err := d.DownloadAll(context.Background(), candidates)
	if err != nil {
		t.Fatalf("DownloadAll failed: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}

	wantStatus := []model.DownloadStatus{
		model.DownloadSuccess,
		model.DownloadSuspicious,
		model.DownloadSuspicious,
		model.DownloadFailed,
	}
	for i, want := range wantStatus {
		if records[i].Status != want {
			t.Errorf("record %d (%s): expected %s, got %s (%s)", i, records[i].Filename, want, records[i].Status, records[i].Error)
		}
	}

	saved := filepath.Join(dir, "2330", "202401_2330_A12.pdf")
	info, err := os.Stat(saved)
	if err != nil {
		t.Fatalf("expected saved file: %v", err)
	}
	if info.Size() != records[0].Size || records[0].Path != saved {
		t.Errorf("record does not match saved file: %+v", records[0])
	}
	if records[0].Quarter != "2024 Q1" || records[0].ReportType != "A12" {
		t.Errorf("unexpected record metadata: %+v", records[0])
	}
	if !strings.Contains(records[3].Error, "no pdf link") {
		t.Errorf("expected no pdf link error, got %q", records[3].Error)
	}
}

func TestDownloader_SkipsLargeExistingFile(t *testing.T) {
	server, pdfHits := twseStub(t, map[string][]byte{"202401_2330_A12.pdf": pdfBody(5000)})

	dir := t.TempDir()
	existing := filepath.Join(dir, "2330", "202401_2330_A12.pdf")
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, pdfBody(200*1024), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDownloader(newTestFetcher(t), dir, server.URL, 1, nil)
	record := d.Download(context.Background(), downloadCandidate(server, "202401_2330_A12.pdf"))

	if record.Status != model.DownloadSkipped {
		t.Errorf("expected skipped, got %s", record.Status)
	}
	if pdfHits.Load() != 0 {
		t.Errorf("expected no PDF request, got %d", pdfHits.Load())
	}
}

func TestDownloader_ReplacesSmallExistingFile(t *testing.T) {
	server, _ := twseStub(t, map[string][]byte{"202401_2330_A12.pdf": pdfBody(5000)})

	dir := t.TempDir()
	existing := filepath.Join(dir, "2330", "202401_2330_A12.pdf")
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDownloader(newTestFetcher(t), dir, server.URL, 1, nil)
	record := d.Download(context.Background(), downloadCandidate(server, "202401_2330_A12.pdf"))
	if record.Status != model.DownloadSuccess {
		t.Fatalf("expected success, got %s (%s)", record.Status, record.Error)
	}

	data, err := os.ReadFile(existing)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != len(pdfBody(5000)) {
		t.Errorf("expected file to be replaced, got %d bytes", len(data))
	}
}

func TestDownloader_DirectPDFReference(t *testing.T) {
	server, pdfHits := twseStub(t, map[string][]byte{"202401_2330_A12.pdf": pdfBody(5000)})

	c := downloadCandidate(server, "202401_2330_A12.pdf")
	c.DownloadReference = server.URL + "/pdf/202401_2330_A12.pdf"

	d := NewDownloader(newTestFetcher(t), t.TempDir(), server.URL, 1, nil)
	record := d.Download(context.Background(), c)
	if record.Status != model.DownloadSuccess {
		t.Errorf("expected success, got %s (%s)", record.Status, record.Error)
	}
	if pdfHits.Load() != 1 {
		t.Errorf("expected 1 PDF request, got %d", pdfHits.Load())
	}
}

func TestDownloader_MissingReference(t *testing.T) {
	d := NewDownloader(newTestFetcher(t), t.TempDir(), "https://doc.twse.com.tw", 1, nil)
	record := d.Download(context.Background(), model.NewReportCandidate("2330", 2024, 1, "A12", "202401_2330_A12.pdf"))
	if record.Status != model.DownloadFailed {
		t.Errorf("expected failed, got %s", record.Status)
	}
}
