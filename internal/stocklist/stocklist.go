// Package stocklist loads the reference company list and tracks how it drifts
// between runs.
package stocklist

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/ppiankov/mopscov/internal/model"
)

// Canonical column headers
const (
	ColumnCode = "代號"
	ColumnName = "名稱"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Header spellings seen in exported lists, mapped onto the canonical columns
var (
	codeHeaders = []string{ColumnCode, "股票代號", "公司代號", "code", "stock_id"}
	nameHeaders = []string{ColumnName, "公司名稱", "股票名稱", "name", "company_name"}
)

func canonicalHeader(h string) string {
	h = strings.TrimSpace(h)
	for _, alias := range codeHeaders {
		if strings.EqualFold(h, alias) {
			return ColumnCode
		}
	}
	for _, alias := range nameHeaders {
		if strings.EqualFold(h, alias) {
			return ColumnName
		}
	}
	return h
}

// LoadResult is a parsed company list plus what was dropped along the way
type LoadResult struct {
	Companies  []model.Company
	Encoding   string // "utf-8" or "big5"
	Invalid    []string
	Duplicates []string
}

// Load reads a company list CSV from path
func Load(path string, logger *zap.Logger) (*LoadResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock list: %w", err)
	}
	result, err := Parse(raw, logger)
	if err != nil {
		return nil, fmt.Errorf("stock list %s: %w", path, err)
	}
	return result, nil
}

// Parse decodes CSV bytes (UTF-8 with optional BOM, else Big5). Codes are
// zero-padded to four digits; invalid codes are skipped and duplicates keep
// their first occurrence. Input order is preserved.
func Parse(raw []byte, logger *zap.Logger) (*LoadResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	text, encoding, err := decode(raw)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty stock list", model.ErrParsing)
		}
		return nil, fmt.Errorf("%w: stock list header: %v", model.ErrParsing, err)
	}

	codeIdx, nameIdx := -1, -1
	for i, h := range header {
		switch canonicalHeader(h) {
		case ColumnCode:
			if codeIdx < 0 {
				codeIdx = i
			}
		case ColumnName:
			if nameIdx < 0 {
				nameIdx = i
			}
		}
	}
	if codeIdx < 0 || nameIdx < 0 {
		return nil, fmt.Errorf("%w: stock list needs %s and %s columns, got %v", model.ErrParsing, ColumnCode, ColumnName, header)
	}

	result := &LoadResult{Encoding: encoding}
	seen := make(map[string]bool)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: stock list row: %v", model.ErrParsing, err)
		}
		if codeIdx >= len(record) {
			continue
		}

		code := normalizeCode(record[codeIdx])
		if code == "" {
			continue
		}
		if err := model.ValidateCompanyID(code); err != nil {
			result.Invalid = append(result.Invalid, code)
			continue
		}
		if seen[code] {
			result.Duplicates = append(result.Duplicates, code)
			continue
		}
		seen[code] = true

		name := ""
		if nameIdx < len(record) {
			name = strings.TrimSpace(record[nameIdx])
		}
		result.Companies = append(result.Companies, model.Company{Code: code, Name: name})
	}

	if len(result.Invalid) > 0 {
		logger.Warn("invalid stock codes skipped", zap.Strings("codes", result.Invalid))
	}
	if len(result.Duplicates) > 0 {
		logger.Warn("duplicate stock codes skipped", zap.Strings("codes", result.Duplicates))
	}
	logger.Info("stock list loaded",
		zap.Int("companies", len(result.Companies)),
		zap.String("encoding", encoding))

	return result, nil
}

func decode(raw []byte) (string, string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}
	decoded, err := traditionalchinese.Big5.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: stock list is neither UTF-8 nor Big5: %v", model.ErrParsing, err)
	}
	return string(decoded), "big5", nil
}

// normalizeCode trims the code and zero-pads spreadsheet-mangled numbers
// ("50" -> "0050")
func normalizeCode(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	if _, err := strconv.Atoi(s); err == nil && len(s) < 4 {
		s = strings.Repeat("0", 4-len(s)) + s
	}
	return s
}

// DetectChanges compares the current list with a previous snapshot. A change
// is large when added+removed exceeds threshold.
func DetectChanges(current, previous []model.Company, threshold int) model.StockListChanges {
	prev := make(map[string]bool, len(previous))
	for _, c := range previous {
		prev[c.Code] = true
	}
	cur := make(map[string]bool, len(current))
	for _, c := range current {
		cur[c.Code] = true
	}

	var changes model.StockListChanges
	for _, c := range current {
		if prev[c.Code] {
			changes.Unchanged++
		} else {
			changes.Added = append(changes.Added, c)
		}
	}
	for _, c := range previous {
		if !cur[c.Code] {
			changes.Removed = append(changes.Removed, c)
		}
	}

	sort.Slice(changes.Added, func(i, j int) bool { return changes.Added[i].Code < changes.Added[j].Code })
	sort.Slice(changes.Removed, func(i, j int) bool { return changes.Removed[i].Code < changes.Removed[j].Code })
	changes.LargeChange = len(changes.Added)+len(changes.Removed) > threshold
	return changes
}

// Save writes companies as a UTF-8 (BOM) CSV snapshot for the next comparison
func Save(path string, companies []model.Company) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{ColumnCode, ColumnName}); err != nil {
		return err
	}
	for _, c := range companies {
		if err := w.Write([]string{c.Code, c.Name}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// SnapshotPath is where the previous run's list is kept
func SnapshotPath(outputDir string) string {
	return filepath.Join(outputDir, "stock_list_snapshot.csv")
}

// LoadSnapshot reads the previous snapshot. A missing snapshot is not an
// error: it returns nil companies.
func LoadSnapshot(path string) ([]model.Company, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	result, err := Load(path, nil)
	if err != nil {
		return nil, err
	}
	return result.Companies, nil
}
