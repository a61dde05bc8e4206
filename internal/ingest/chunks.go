package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/surisearch/suri-search/internal/analyzer"
	"github.com/surisearch/suri-search/internal/pkg/hash"
	"github.com/surisearch/suri-search/internal/schema"
	"github.com/surisearch/suri-search/internal/vector"
)

// chunk is one renderable unit headed for the vector store.
type chunk struct {
	id       string
	text     string
	metadata vector.Metadata
}

type buildChunksInput struct {
	sheet            analyzer.SheetAnalysis
	header           []string
	rows             [][]string
	schema           *schema.SchemaDefinition
	documentID       string
	contentHash      string
	defaultPartition string
}

// columnIndex locates columns by their analyzed semantic category.
type columnIndex struct {
	identifier int
	name       int
	department int
	period     int
	insurer    int
	financial  []int
	columns    []analyzer.ColumnAnalysis
}

func indexColumns(cols []analyzer.ColumnAnalysis) columnIndex {
	idx := columnIndex{identifier: -1, name: -1, department: -1, period: -1, insurer: -1, columns: cols}
	for i, col := range cols {
		switch col.SemanticCategory {
		case analyzer.CategoryIdentifier:
			if idx.identifier < 0 {
				idx.identifier = i
			}
		case analyzer.CategoryName:
			if idx.name < 0 {
				idx.name = i
			}
		case analyzer.CategoryDepartment:
			if idx.department < 0 {
				idx.department = i
			}
		case analyzer.CategoryPeriod:
			if idx.period < 0 {
				idx.period = i
			}
		case analyzer.CategoryInsurer:
			if idx.insurer < 0 {
				idx.insurer = i
			}
		case analyzer.CategoryCommission, analyzer.CategoryOverride, analyzer.CategoryClawback,
			analyzer.CategoryIncome, analyzer.CategoryAmount, analyzer.CategoryRate, analyzer.CategoryCount:
			idx.financial = append(idx.financial, i)
		}
	}
	return idx
}

// buildChunks groups data rows per employee and renders the chunk types
// the schema declares. Documents without an identifier column fall back to
// per-row record chunks in the default partition.
func buildChunks(in buildChunksInput) []chunk {
	idx := indexColumns(in.sheet.Columns)

	if idx.identifier < 0 {
		return recordChunks(in, idx, "", in.rows)
	}

	// Group preserving first-seen order so chunk IDs stay stable across
	// re-ingestion of identical content.
	var order []string
	grouped := make(map[string][][]string)
	for _, row := range in.rows {
		id := cellAt(row, idx.identifier)
		if id == "" {
			continue
		}
		if _, ok := grouped[id]; !ok {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], row)
	}

	var chunks []chunk
	for _, employeeID := range order {
		entityRows := grouped[employeeID]
		entityKey := in.documentID + ":" + employeeID
		period := firstValue(entityRows, idx.period)

		for _, chunkType := range in.schema.ChunkTypes {
			var texts []string
			switch chunkType {
			case "profile":
				texts = []string{profileText(idx, entityRows[0])}
			case "financial_summary":
				texts = []string{financialText(idx, entityRows)}
			case "insurer_breakdown":
				texts = insurerTexts(idx, entityRows)
			case "record":
				for _, row := range entityRows {
					texts = append(texts, recordText(idx, in.header, row))
				}
			}

			for seq, text := range texts {
				if strings.TrimSpace(text) == "" {
					continue
				}
				chunks = append(chunks, chunk{
					id:   hash.ChunkID(entityKey, chunkType, seq),
					text: text,
					metadata: vector.Metadata{
						Partition:   partitionFor(employeeID, in.defaultPartition),
						DocumentID:  in.documentID,
						EmployeeID:  employeeID,
						SchemaSlug:  in.schema.TemplateSlug,
						ChunkType:   chunkType,
						AccessLevel: accessLevelFor(chunkType),
						Period:      period,
						ContentHash: in.contentHash,
					},
				})
			}
		}
	}
	return chunks
}

// recordChunks renders one record chunk per row for identifier-less sheets.
func recordChunks(in buildChunksInput, idx columnIndex, employeeID string, rows [][]string) []chunk {
	entityKey := in.documentID
	var chunks []chunk
	for seq, row := range rows {
		text := recordText(idx, in.header, row)
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, chunk{
			id:   hash.ChunkID(entityKey, "record", seq),
			text: text,
			metadata: vector.Metadata{
				Partition:   partitionFor(employeeID, in.defaultPartition),
				DocumentID:  in.documentID,
				SchemaSlug:  in.schema.TemplateSlug,
				ChunkType:   "record",
				AccessLevel: accessLevelFor("record"),
				Period:      cellAt(row, idx.period),
				ContentHash: in.contentHash,
			},
		})
	}
	return chunks
}

// profileText renders the directory identity of one employee.
func profileText(idx columnIndex, row []string) string {
	var parts []string
	for _, col := range []int{idx.identifier, idx.name, idx.department} {
		if col >= 0 {
			parts = append(parts, labeled(idx.columns[col].Name, cellAt(row, col)))
		}
	}
	return joinNonEmpty(parts, "\n")
}

// financialText renders summed financial columns across an entity's rows.
func financialText(idx columnIndex, rows [][]string) string {
	var parts []string
	if idx.identifier >= 0 {
		parts = append(parts, labeled(idx.columns[idx.identifier].Name, cellAt(rows[0], idx.identifier)))
	}
	if idx.period >= 0 {
		parts = append(parts, labeled(idx.columns[idx.period].Name, firstValue(rows, idx.period)))
	}

	for _, col := range idx.financial {
		if len(rows) == 1 {
			parts = append(parts, labeled(idx.columns[col].Name, cellAt(rows[0], col)))
			continue
		}
		sum, ok := sumColumn(rows, col)
		if !ok {
			parts = append(parts, labeled(idx.columns[col].Name, firstValue(rows, col)))
			continue
		}
		parts = append(parts, labeled(idx.columns[col].Name, formatAmount(sum)))
	}
	return joinNonEmpty(parts, "\n")
}

// insurerTexts renders one chunk per insurer, with that insurer's summed
// financial columns.
func insurerTexts(idx columnIndex, rows [][]string) []string {
	if idx.insurer < 0 {
		return nil
	}

	var order []string
	grouped := make(map[string][][]string)
	for _, row := range rows {
		insurer := cellAt(row, idx.insurer)
		if insurer == "" {
			continue
		}
		if _, ok := grouped[insurer]; !ok {
			order = append(order, insurer)
		}
		grouped[insurer] = append(grouped[insurer], row)
	}

	var texts []string
	for _, insurer := range order {
		parts := []string{labeled(idx.columns[idx.insurer].Name, insurer)}
		if idx.identifier >= 0 {
			parts = append(parts, labeled(idx.columns[idx.identifier].Name, cellAt(grouped[insurer][0], idx.identifier)))
		}
		for _, col := range idx.financial {
			if sum, ok := sumColumn(grouped[insurer], col); ok {
				parts = append(parts, labeled(idx.columns[col].Name, formatAmount(sum)))
			}
		}
		texts = append(texts, joinNonEmpty(parts, "\n"))
	}
	return texts
}

// recordText renders every cell of one row as labeled lines.
func recordText(idx columnIndex, header []string, row []string) string {
	parts := make([]string, 0, len(header))
	for col := range header {
		name := header[col]
		if col < len(idx.columns) {
			name = idx.columns[col].Name
		}
		parts = append(parts, labeled(name, cellAt(row, col)))
	}
	return joinNonEmpty(parts, "\n")
}

func labeled(name, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return name + ": " + value
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func firstValue(rows [][]string, col int) string {
	for _, row := range rows {
		if v := cellAt(row, col); v != "" {
			return v
		}
	}
	return ""
}

func sumColumn(rows [][]string, col int) (float64, bool) {
	sum := 0.0
	any := false
	for _, row := range rows {
		v := cellAt(row, col)
		if v == "" {
			continue
		}
		n, ok := parseAmount(v)
		if !ok {
			return 0, false
		}
		sum += n
		any = true
	}
	return sum, any
}

func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₩")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "원")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatAmount(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
