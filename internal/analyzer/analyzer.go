// Package analyzer infers the structure of unfamiliar tabular documents:
// header rows, per-column value types, semantic categories and structure
// markers used downstream for schema matching.
package analyzer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/surisearch/suri-search/internal/pkg/logger"
)

const (
	// headerScanRows is how many leading rows are scanned for a header.
	headerScanRows = 10

	// sampleLimit caps the number of non-empty values sampled per column.
	sampleLimit = 100

	// sampleValuesKept caps the raw samples carried in the result.
	sampleValuesKept = 10

	// mixedThreshold is the confidence below which a column with string
	// values is downgraded to "mixed".
	mixedThreshold = 0.6
)

// Analyzer infers document structure from raw tabular buffers.
type Analyzer struct {
	log *logger.Logger
}

// New creates a new structure analyzer.
func New(log *logger.Logger) *Analyzer {
	return &Analyzer{log: log}
}

// Analyze parses the buffer as the declared kind (csv, tsv, jsonl; sniffed
// when empty) and analyzes every sheet. Unparseable input yields an empty
// analysis with confidence 0.1 rather than an error: downstream callers
// decide whether to reject or route to manual handling.
func (a *Analyzer) Analyze(name string, data []byte, kind string) *DocumentAnalysis {
	if kind == "" {
		kind = sniffKind(data)
	}

	rows, err := parseTable(data, kind)
	if err != nil || len(rows) == 0 {
		a.log.Warn("unparseable tabular input", "name", name, "kind", kind, "error", err)
		return &DocumentAnalysis{
			DocumentType: "unknown",
			Confidence:   0.1,
		}
	}

	sheet := a.analyzeSheet(name, rows)

	doc := &DocumentAnalysis{
		Sheets: []SheetAnalysis{sheet},
	}
	doc.Confidence = overallConfidence(doc.Sheets)
	doc.DocumentType = classifyDocument(doc)
	doc.StructureMarkers = buildMarkers(doc)

	return doc
}

// ParseDocument parses raw tabular bytes into rows, sniffing the format
// when kind is empty, and returns the detected header row index. Ingestion
// uses this to walk the same rows the analysis was built from.
func ParseDocument(data []byte, kind string) ([][]string, int, error) {
	if kind == "" {
		kind = sniffKind(data)
	}
	rows, err := parseTable(data, kind)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("no rows in document")
	}
	return rows, detectHeaderRow(rows), nil
}

// AnalyzeSheets analyzes a document already split into named sheets of rows.
func (a *Analyzer) AnalyzeSheets(sheets map[string][][]string) *DocumentAnalysis {
	doc := &DocumentAnalysis{}

	names := make([]string, 0, len(sheets))
	for n := range sheets {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if len(sheets[n]) == 0 {
			continue
		}
		doc.Sheets = append(doc.Sheets, a.analyzeSheet(n, sheets[n]))
	}

	if len(doc.Sheets) == 0 {
		doc.DocumentType = "unknown"
		doc.Confidence = 0.1
		return doc
	}

	doc.Confidence = overallConfidence(doc.Sheets)
	doc.DocumentType = classifyDocument(doc)
	doc.StructureMarkers = buildMarkers(doc)
	return doc
}

func (a *Analyzer) analyzeSheet(name string, rows [][]string) SheetAnalysis {
	headerRow := detectHeaderRow(rows)
	header := rows[headerRow]
	dataRows := rows[headerRow+1:]

	sheet := SheetAnalysis{
		Name:      name,
		HeaderRow: headerRow,
		RowCount:  len(dataRows),
		Columns:   make([]ColumnAnalysis, 0, len(header)),
	}

	for colIdx, rawName := range header {
		rawName = strings.TrimSpace(rawName)
		if rawName == "" {
			rawName = fmt.Sprintf("column_%d", colIdx+1)
		}

		values, nullable := columnValues(dataRows, colIdx)
		sheet.Columns = append(sheet.Columns, analyzeColumn(rawName, values, nullable))
	}

	return sheet
}

// detectHeaderRow scans the first rows and picks the first with at least 3
// non-empty cells where more than 70% are text-typed. Defaults to row 0.
func detectHeaderRow(rows [][]string) int {
	limit := headerScanRows
	if len(rows) < limit {
		limit = len(rows)
	}

	for i := 0; i < limit; i++ {
		nonEmpty := 0
		textTyped := 0
		for _, cell := range rows[i] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			nonEmpty++
			if classifyValue(cell) == TypeString {
				textTyped++
			}
		}
		if nonEmpty >= 3 && float64(textTyped) > 0.7*float64(nonEmpty) {
			return i
		}
	}
	return 0
}

// columnValues collects the raw cell values for one column, nullability
// included. Sampling is bounded at sampleLimit non-empty values.
func columnValues(rows [][]string, colIdx int) (values []string, nullable bool) {
	for _, row := range rows {
		if colIdx >= len(row) {
			nullable = true
			continue
		}
		v := strings.TrimSpace(row[colIdx])
		if v == "" {
			nullable = true
			continue
		}
		if len(values) < sampleLimit {
			values = append(values, v)
		}
	}
	return values, nullable
}

// analyzeColumn infers the dominant value type of a column by counting, per
// value, the first pattern it matches from an ordered set. Order matters:
// the patterns are not mutually exclusive (a percentage also parses as a
// number), so the most specific patterns are tried first.
func analyzeColumn(name string, values []string, nullable bool) ColumnAnalysis {
	col := ColumnAnalysis{
		Name:           name,
		NormalizedName: Normalize(name),
		Nullable:       nullable,
	}

	if len(values) == 0 {
		col.InferredType = TypeString
		col.TypeConfidence = 0
		col.SemanticCategory = categorize(col)
		return col
	}

	counts := make(map[ValueType]int)
	distinct := make(map[string]struct{})
	var numeric []float64

	for _, v := range values {
		t := classifyValue(v)
		counts[t]++
		distinct[v] = struct{}{}

		if n, ok := parseNumeric(v); ok {
			numeric = append(numeric, n)
		}
	}

	// Integer-like and decimal-like counts coalesce into a generic number.
	if counts[TypeInteger] > 0 && counts[TypeDecimal] > 0 {
		counts[TypeNumber] = counts[TypeInteger] + counts[TypeDecimal]
		delete(counts, TypeInteger)
		delete(counts, TypeDecimal)
	}

	dominant, dominantCount := dominantType(counts)

	col.InferredType = dominant
	col.TypeConfidence = float64(dominantCount) / float64(len(values))
	col.Uniqueness = float64(len(distinct)) / float64(len(values))

	// Below the threshold with string values present the column documents
	// real ambiguity rather than a guess.
	if col.TypeConfidence < mixedThreshold && counts[TypeString] > 0 && dominant != TypeString {
		col.InferredType = TypeMixed
		col.TypeConfidence = 0.5
	}

	kept := len(values)
	if kept > sampleValuesKept {
		kept = sampleValuesKept
	}
	col.SampleValues = append([]string(nil), values[:kept]...)

	if isNumericType(col.InferredType) && len(numeric) > 0 {
		col.NumericStats = computeStats(numeric)
	}

	// Categorization reads the inferred type and uniqueness, so it runs
	// after everything else is settled.
	col.SemanticCategory = categorize(col)

	return col
}

func dominantType(counts map[ValueType]int) (ValueType, int) {
	// Deterministic tie-breaking: walk types in pattern order.
	order := []ValueType{
		TypeIdentifier, TypeBoolean, TypePercentage, TypeCurrency,
		TypeDate, TypePeriod, TypeNumber, TypeInteger, TypeDecimal, TypeString,
	}

	best := TypeString
	bestCount := 0
	for _, t := range order {
		if counts[t] > bestCount {
			best = t
			bestCount = counts[t]
		}
	}
	return best, bestCount
}

func isNumericType(t ValueType) bool {
	switch t {
	case TypePercentage, TypeCurrency, TypeInteger, TypeDecimal, TypeNumber:
		return true
	}
	return false
}

func computeStats(values []float64) *NumericStats {
	stats := &NumericStats{Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += v
	}
	stats.Mean = sum / float64(len(values))
	return stats
}

// Value classification patterns, most specific first.
var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z]\d{5}$`)
	percentPattern    = regexp.MustCompile(`^-?\d{1,3}(,\d{3})*(\.\d+)?\s*%$|^-?\d+(\.\d+)?\s*%$`)
	currencyPattern   = regexp.MustCompile(`^[₩$]?-?\d{1,3}(,\d{3})+(\.\d+)?(원)?$|^-?\d+(\.\d+)?원$`)
	datePattern       = regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}$|^\d{4}년\s?\d{1,2}월\s?\d{1,2}일$|^\d{8}$`)
	periodPattern     = regexp.MustCompile(`^\d{4}[-/.]\d{1,2}$|^\d{4}년\s?\d{1,2}월$|^\d{6}$`)
	integerPattern    = regexp.MustCompile(`^-?\d+$`)
	decimalPattern    = regexp.MustCompile(`^-?\d+\.\d+$`)
)

var booleanTokens = map[string]struct{}{
	"true": {}, "false": {}, "yes": {}, "no": {}, "y": {}, "n": {},
	"o": {}, "x": {}, "예": {}, "아니오": {}, "아니요": {}, "여": {}, "부": {},
	"유": {}, "무": {},
}

// classifyValue returns the first matching type for a single cell value.
func classifyValue(v string) ValueType {
	switch {
	case identifierPattern.MatchString(v):
		return TypeIdentifier
	case isBooleanToken(v):
		return TypeBoolean
	case percentPattern.MatchString(v):
		return TypePercentage
	case currencyPattern.MatchString(v):
		return TypeCurrency
	case datePattern.MatchString(v):
		return TypeDate
	case periodPattern.MatchString(v):
		return TypePeriod
	case integerPattern.MatchString(v):
		return TypeInteger
	case decimalPattern.MatchString(v):
		return TypeDecimal
	default:
		if _, ok := parseNumeric(v); ok {
			return TypeNumber
		}
		return TypeString
	}
}

func isBooleanToken(v string) bool {
	_, ok := booleanTokens[strings.ToLower(v)]
	return ok
}

// parseNumeric parses a value as a number, tolerating comma grouping and
// currency/percent decorations.
func parseNumeric(v string) (float64, bool) {
	s := strings.TrimSpace(v)
	s = strings.TrimPrefix(s, "₩")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSuffix(s, "원")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Normalize lowercases a field name and strips whitespace, separators and
// all non-alphanumeric runes except Korean syllables, so that "사원 명",
// "사원명" and "[사원명]" compare equal.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) && !unicode.IsSpace(r):
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func overallConfidence(sheets []SheetAnalysis) float64 {
	total := 0.0
	count := 0
	for _, s := range sheets {
		for _, c := range s.Columns {
			total += c.TypeConfidence
			count++
		}
	}
	if count == 0 {
		return 0.1
	}
	return total / float64(count)
}

// sniffKind guesses the tabular kind from the buffer contents.
func sniffKind(data []byte) string {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "jsonl"
	}
	firstLine := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		firstLine = data[:idx]
	}
	if bytes.ContainsRune(firstLine, '\t') {
		return "tsv"
	}
	return "csv"
}

// parseTable parses the buffer into rows of cells for the given kind.
func parseTable(data []byte, kind string) ([][]string, error) {
	switch kind {
	case "csv", "tsv":
		r := csv.NewReader(bytes.NewReader(data))
		if kind == "tsv" {
			r.Comma = '\t'
		}
		r.FieldsPerRecord = -1
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", kind, err)
		}
		return rows, nil
	case "jsonl", "json":
		return parseJSONRows(data)
	default:
		return nil, fmt.Errorf("unknown tabular kind: %s", kind)
	}
}

// parseJSONRows accepts either a JSON array of flat objects or one object
// per line, and converts them into header+rows form.
func parseJSONRows(data []byte) ([][]string, error) {
	var objects []map[string]any

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(data, &objects); err != nil {
			return nil, fmt.Errorf("parsing json array: %w", err)
		}
	} else {
		for _, line := range bytes.Split(data, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var obj map[string]any
			if err := json.Unmarshal(line, &obj); err != nil {
				return nil, fmt.Errorf("parsing json line: %w", err)
			}
			objects = append(objects, obj)
		}
	}

	if len(objects) == 0 {
		return nil, fmt.Errorf("no rows found")
	}

	// Stable header: union of keys in sorted order.
	keySet := make(map[string]struct{})
	for _, obj := range objects {
		for k := range obj {
			keySet[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(keySet))
	for k := range keySet {
		header = append(header, k)
	}
	sort.Strings(header)

	rows := make([][]string, 0, len(objects)+1)
	rows = append(rows, header)
	for _, obj := range objects {
		row := make([]string, len(header))
		for i, k := range header {
			if v, ok := obj[k]; ok && v != nil {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
