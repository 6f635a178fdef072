package resultset

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ardanlabs/qcommerce-evals/foundation/vector"
)

// Options controls how strictly two tables are compared.
type Options struct {
	AbsTolerance float64
	RelTolerance float64
	StrictOrder  bool
}

// DefaultOptions accepts rounding differences like 14.7 versus 14.71.
func DefaultOptions() Options {
	return Options{
		AbsTolerance: 0.011,
		RelTolerance: 0.001,
	}
}

// Comparison is the outcome of comparing an agent's table with the expected
// one. Score is in [0, 1]; Match is true only for a full match.
type Comparison struct {
	Score     float64           `json:"score"`
	Match     bool              `json:"match"`
	Reasons   []string          `json:"reasons"`
	ColumnMap map[string]string `json:"column_map"`
}

// Reasoning joins the reasons into one line.
func (c Comparison) Reasoning() string {
	if len(c.Reasons) == 0 {
		return "Results match"
	}

	return strings.Join(c.Reasons, "; ")
}

// Compare scores actual against expected. Column names, column order, extra
// columns, row order (unless StrictOrder) and date formatting are ignored;
// numbers match within the tolerances. Columns are paired by content first
// and by name second. An expected table without columns matches nothing.
func Compare(expected Table, actual Table, opts Options) Comparison {
	cmp := Comparison{ColumnMap: make(map[string]string)}

	if len(expected.Columns) == 0 {
		cmp.Reasons = append(cmp.Reasons, "no expected answer to compare against")
		return cmp
	}

	exp := cellsOf(expected)
	act := cellsOf(actual)

	mapping := alignColumns(expected, actual, exp, act, opts)

	var mapped int
	used := make(map[int]bool)
	for j, k := range mapping {
		if k < 0 {
			cmp.Reasons = append(cmp.Reasons, fmt.Sprintf("expected column %q not found in agent output", expected.Columns[j].Name))
			continue
		}
		mapped++
		used[k] = true
		cmp.ColumnMap[expected.Columns[j].Name] = actual.Columns[k].Name
	}

	var extra []string
	for k, c := range actual.Columns {
		if !used[k] {
			extra = append(extra, c.Name)
		}
	}
	if len(extra) > 0 {
		cmp.Reasons = append(cmp.Reasons, fmt.Sprintf("extra columns ignored: %s", strings.Join(extra, ", ")))
	}

	if len(expected.Columns) > 0 && mapped == 0 {
		cmp.Reasons = append(cmp.Reasons, "no expected column could be matched")
		return cmp
	}

	matched := matchRows(exp, act, mapping, opts)

	if len(expected.Rows) != len(actual.Rows) {
		cmp.Reasons = append(cmp.Reasons, fmt.Sprintf("row count differs: expected %d, got %d", len(expected.Rows), len(actual.Rows)))
	}

	if matched < len(expected.Rows) {
		cmp.Reasons = append(cmp.Reasons, fmt.Sprintf("%d of %d expected rows matched", matched, len(expected.Rows)))
	}

	colFraction := 1.0
	if len(expected.Columns) > 0 {
		colFraction = float64(mapped) / float64(len(expected.Columns))
	}

	rowFraction := 1.0
	if n := max(len(expected.Rows), len(actual.Rows)); n > 0 {
		rowFraction = float64(matched) / float64(n)
	}

	cmp.Score = math.Round(colFraction*rowFraction*100) / 100
	cmp.Match = mapped == len(expected.Columns) && matched == len(expected.Rows) && len(expected.Rows) == len(actual.Rows)

	if cmp.Match {
		cmp.Score = 1
		cmp.Reasons = slices.DeleteFunc(cmp.Reasons, func(r string) bool {
			return !strings.HasPrefix(r, "extra columns")
		})
	}

	return cmp
}

// =============================================================================

type cell struct {
	null  bool
	isNum bool
	num   float64
	text  string
}

func toCell(v any) cell {
	switch v := v.(type) {
	case nil:
		return cell{null: true}
	case int64:
		return cell{isNum: true, num: float64(v)}
	case float64:
		if math.IsNaN(v) {
			return cell{null: true}
		}
		return cell{isNum: true, num: v}
	case time.Time:
		return cell{text: FormatCell(v.UTC())}
	case bool:
		return cell{text: strings.ToLower(FormatCell(v))}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return cell{null: true}
		}
		if n, ok := parseCell(s).(int64); ok {
			return cell{isNum: true, num: float64(n)}
		}
		if f, ok := parseCell(s).(float64); ok {
			return cell{isNum: true, num: f}
		}
		if d, ok := normalizeDate(s); ok {
			return cell{text: d}
		}
		return cell{text: strings.ToLower(s)}
	default:
		return cell{text: strings.ToLower(FormatCell(v))}
	}
}

var dateLayouts = []string{time.DateTime, time.RFC3339, time.DateOnly, "2006-01"}

func normalizeDate(s string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FormatCell(t), true
		}
	}

	return "", false
}

// cellsOf returns the table column-major.
func cellsOf(t Table) [][]cell {
	cols := make([][]cell, len(t.Columns))
	for j := range cols {
		cols[j] = make([]cell, len(t.Rows))
	}

	for i, row := range t.Rows {
		for j := range cols {
			if j < len(row) {
				cols[j][i] = toCell(row[j])
			} else {
				cols[j][i] = cell{null: true}
			}
		}
	}

	return cols
}

func (o Options) numEqual(a, b float64) bool {
	d := math.Abs(a - b)
	if d <= o.AbsTolerance {
		return true
	}

	return d <= o.RelTolerance*math.Max(math.Abs(a), math.Abs(b))
}

func (o Options) cellEqual(a, b cell) bool {
	switch {
	case a.null || b.null:
		return a.null == b.null
	case a.isNum && b.isNum:
		return o.numEqual(a.num, b.num)
	case a.isNum != b.isNum:
		return false
	default:
		return a.text == b.text
	}
}

// =============================================================================

type profile []float64

func (p profile) Vector() []float64 {
	return p
}

func numericProfile(col []cell) (profile, bool) {
	values := make([]float64, 0, len(col))
	for _, c := range col {
		switch {
		case c.null:
		case c.isNum:
			values = append(values, c.num)
		default:
			return nil, false
		}
	}

	return profile(vector.Profile(values)), len(values) > 0
}

// overlap returns the fraction of expected cells found in the actual column,
// each actual cell used at most once.
func overlap(exp []cell, act []cell, opts Options) float64 {
	if len(exp) == 0 {
		if len(act) == 0 {
			return 1
		}
		return 0
	}

	var expNums, actNums []float64
	var expNull, actNull int
	expText := make(map[string]int)
	actText := make(map[string]int)

	split := func(col []cell, nums *[]float64, nulls *int, texts map[string]int) {
		for _, c := range col {
			switch {
			case c.null:
				*nulls++
			case c.isNum:
				*nums = append(*nums, c.num)
			default:
				texts[c.text]++
			}
		}
	}

	split(exp, &expNums, &expNull, expText)
	split(act, &actNums, &actNull, actText)

	matched := min(expNull, actNull)

	for t, n := range expText {
		matched += min(n, actText[t])
	}

	sort.Float64s(expNums)
	sort.Float64s(actNums)

	for i, j := 0, 0; i < len(expNums) && j < len(actNums); {
		switch {
		case opts.numEqual(expNums[i], actNums[j]):
			matched++
			i++
			j++
		case expNums[i] < actNums[j]:
			i++
		default:
			j++
		}
	}

	return float64(matched) / float64(len(exp))
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// alignColumns returns, for every expected column, the index of the actual
// column holding the same data or -1.
func alignColumns(expected Table, actual Table, exp [][]cell, act [][]cell, opts Options) []int {
	type pair struct {
		j, k      int
		score     float64
		nameEqual bool
	}

	var pairs []pair

	for j := range exp {
		en := normalizeName(expected.Columns[j].Name)
		ep, eNumeric := numericProfile(exp[j])

		for k := range act {
			an := normalizeName(actual.Columns[k].Name)

			p := pair{j: j, k: k, score: overlap(exp[j], act[k], opts)}

			switch {
			case en != "" && en == an:
				p.nameEqual = true
				p.score += 0.05
			case en != "" && an != "" && (strings.Contains(en, an) || strings.Contains(an, en)):
				p.score += 0.02
			}

			if eNumeric {
				if ap, ok := numericProfile(act[k]); ok {
					p.score += 0.01 * vector.Similarity(ep, ap)[0].Similarity
				}
			}

			pairs = append(pairs, p)
		}
	}

	sort.SliceStable(pairs, func(a, b int) bool {
		return pairs[a].score > pairs[b].score
	})

	mapping := make([]int, len(exp))
	for j := range mapping {
		mapping[j] = -1
	}
	taken := make(map[int]bool)

	for _, p := range pairs {
		if mapping[p.j] >= 0 || taken[p.k] {
			continue
		}

		if p.score < 0.5 && !p.nameEqual {
			continue
		}

		mapping[p.j] = p.k
		taken[p.k] = true
	}

	return mapping
}

// matchRows counts expected rows that have a distinct matching actual row
// over the mapped columns.
func matchRows(exp [][]cell, act [][]cell, mapping []int, opts Options) int {
	expRows := 0
	if len(exp) > 0 {
		expRows = len(exp[0])
	}

	actRows := 0
	if len(act) > 0 {
		actRows = len(act[0])
	}

	rowMatches := func(i, r int) bool {
		for j, k := range mapping {
			if k < 0 {
				continue
			}
			if !opts.cellEqual(exp[j][i], act[k][r]) {
				return false
			}
		}
		return true
	}

	var matched int

	if opts.StrictOrder {
		for i := range min(expRows, actRows) {
			if rowMatches(i, i) {
				matched++
			}
		}
		return matched
	}

	// Bucket actual rows by their exact text cells so only rows that can
	// match are compared numerically.
	key := func(cols [][]cell, i int, pick func(j int) int) string {
		var b strings.Builder
		for j := range mapping {
			col := pick(j)
			if col < 0 {
				continue
			}
			c := cols[col][i]
			switch {
			case c.null:
				b.WriteString("\x00N")
			case c.isNum:
				b.WriteString("\x00#")
			default:
				b.WriteString("\x00")
				b.WriteString(c.text)
			}
		}
		return b.String()
	}

	buckets := make(map[string][]int)
	for r := range actRows {
		k := key(act, r, func(j int) int { return mapping[j] })
		buckets[k] = append(buckets[k], r)
	}

	used := make([]bool, actRows)
	for i := range expRows {
		k := key(exp, i, func(j int) int {
			if mapping[j] < 0 {
				return -1
			}
			return j
		})

		for _, r := range buckets[k] {
			if !used[r] && rowMatches(i, r) {
				used[r] = true
				matched++
				break
			}
		}
	}

	return matched
}
