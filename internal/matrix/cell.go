package matrix

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/mopscov/internal/model"
)

// EmptyCell is rendered for a (company, quarter) without reports
const EmptyCell = "-"

// RenderOptions controls how a cell is displayed
type RenderOptions struct {
	ShowAll           bool
	Separator         string
	MaxItems          int
	Categorized       bool
	CategorySeparator string
	TruncateIndicator string
}

// RenderOptionsFromConfig maps the matrix config onto render options
func RenderOptionsFromConfig(cfg model.MatrixConfig) RenderOptions {
	return RenderOptions{
		ShowAll:           cfg.ShowAll,
		Separator:         cfg.Separator,
		MaxItems:          cfg.MaxDisplayItems,
		Categorized:       cfg.Categorized,
		CategorySeparator: cfg.CategorySeparator,
		TruncateIndicator: cfg.TruncateIndicator,
	}
}

// typeInfo is what a cell remembers per distinct report type
type typeInfo struct {
	priority int
	category model.Category
}

// Cell accumulates every classified report for one company and quarter.
// Absorption is commutative: the final state depends only on the multiset
// of absorbed candidates.
type Cell struct {
	types        map[string]typeInfo
	categories   map[model.Category]bool
	bestPriority int
	count        int
}

// NewCell returns an empty cell
func NewCell() *Cell {
	return &Cell{
		types:        make(map[string]typeInfo),
		categories:   make(map[model.Category]bool),
		bestPriority: model.PriorityLowest,
	}
}

// Absorb adds one candidate to the cell
func (c *Cell) Absorb(candidate model.ReportCandidate) {
	code := candidate.ReportType
	info := typeInfo{priority: candidate.Priority, category: candidate.Category}

	// Keep the most preferred reading of a type; ties break on category name
	if prev, ok := c.types[code]; ok {
		if prev.priority < info.priority || (prev.priority == info.priority && prev.category <= info.category) {
			info = prev
		}
	}
	c.types[code] = info
	c.categories[candidate.Category] = true

	if candidate.Priority < c.bestPriority {
		c.bestPriority = candidate.Priority
	}
	c.count++
}

// Empty reports whether nothing was absorbed
func (c *Cell) Empty() bool {
	return c == nil || c.count == 0
}

// Count is the number of absorbed candidates
func (c *Cell) Count() int {
	if c == nil {
		return 0
	}
	return c.count
}

// BestPriority is the minimum priority absorbed, or 9 when empty
func (c *Cell) BestPriority() int {
	if c == nil {
		return model.PriorityLowest
	}
	return c.bestPriority
}

// Types returns distinct type codes sorted by (priority, code)
func (c *Cell) Types() []string {
	if c.Empty() {
		return nil
	}
	codes := make([]string, 0, len(c.types))
	for code := range c.types {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		pi, pj := c.types[codes[i]].priority, c.types[codes[j]].priority
		if pi != pj {
			return pi < pj
		}
		return codes[i] < codes[j]
	})
	return codes
}

// Categories returns the distinct categories seen, in display order
func (c *Cell) Categories() []model.Category {
	if c.Empty() {
		return nil
	}
	var cats []model.Category
	for _, cat := range model.CategoryOrder {
		if c.categories[cat] {
			cats = append(cats, cat)
		}
	}
	return cats
}

// Best returns the single most preferred type code
func (c *Cell) Best() string {
	types := c.Types()
	if len(types) == 0 {
		return ""
	}
	return types[0]
}

// Render formats the cell for display
func (c *Cell) Render(opts RenderOptions) string {
	if c.Empty() {
		return EmptyCell
	}
	if !opts.ShowAll {
		return c.Best()
	}
	if opts.Categorized {
		return c.renderCategorized(opts)
	}

	types := c.Types()
	if opts.MaxItems > 0 && len(types) > opts.MaxItems {
		visible := opts.MaxItems - 1
		if visible < 1 {
			visible = 1
		}
		hidden := len(types) - visible
		return strings.Join(types[:visible], opts.Separator) + opts.TruncateIndicator + strconv.Itoa(hidden)
	}
	return strings.Join(types, opts.Separator)
}

func (c *Cell) renderCategorized(opts RenderOptions) string {
	groups := make(map[model.Category][]string)
	for _, code := range c.Types() {
		cat := c.types[code].category
		groups[cat] = append(groups[cat], code)
	}

	var parts []string
	for _, cat := range model.CategoryOrder {
		if codes := groups[cat]; len(codes) > 0 {
			parts = append(parts, strings.Join(codes, opts.Separator))
		}
	}
	return strings.Join(parts, opts.CategorySeparator)
}
