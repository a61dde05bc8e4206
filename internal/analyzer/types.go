package analyzer

// ValueType is the inferred type of a column.
type ValueType string

// Inferred column types, ordered from most to least specific.
const (
	TypeIdentifier ValueType = "identifier"
	TypeBoolean    ValueType = "boolean"
	TypePercentage ValueType = "percentage"
	TypeCurrency   ValueType = "currency"
	TypeDate       ValueType = "date"
	TypePeriod     ValueType = "period"
	TypeInteger    ValueType = "integer"
	TypeDecimal    ValueType = "decimal"
	TypeNumber     ValueType = "number"
	TypeString     ValueType = "string"
	TypeMixed      ValueType = "mixed"
)

// SemanticCategory classifies what a column means in the domain.
type SemanticCategory string

// Semantic categories recognized by the analyzer.
const (
	CategoryIdentifier SemanticCategory = "identifier"
	CategoryName       SemanticCategory = "name"
	CategoryDepartment SemanticCategory = "department"
	CategoryDate       SemanticCategory = "date"
	CategoryPeriod     SemanticCategory = "period"
	CategoryAmount     SemanticCategory = "amount"
	CategoryCommission SemanticCategory = "commission"
	CategoryOverride   SemanticCategory = "override"
	CategoryPolicy     SemanticCategory = "policy"
	CategoryClawback   SemanticCategory = "clawback"
	CategoryIncome     SemanticCategory = "income"
	CategoryCount      SemanticCategory = "count"
	CategoryRate       SemanticCategory = "rate"
	CategoryStatus     SemanticCategory = "status"
	CategoryInsurer    SemanticCategory = "insurer"
	CategoryProduct    SemanticCategory = "product"
)

// NumericStats summarizes the numeric values observed in a column.
type NumericStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// ColumnAnalysis describes a single analyzed column.
type ColumnAnalysis struct {
	// Name is the raw header text.
	Name string `json:"name"`

	// NormalizedName is the lowercased, separator-stripped header.
	NormalizedName string `json:"normalized_name"`

	// InferredType is the dominant value type.
	InferredType ValueType `json:"inferred_type"`

	// SemanticCategory is the domain meaning, when one could be assigned.
	SemanticCategory SemanticCategory `json:"semantic_category,omitempty"`

	// Uniqueness is distinct/total over the sampled values.
	Uniqueness float64 `json:"uniqueness"`

	// TypeConfidence is dominantCount/totalNonEmpty.
	TypeConfidence float64 `json:"type_confidence"`

	// Nullable reports whether any sampled cell was empty.
	Nullable bool `json:"nullable"`

	// SampleValues holds up to 10 raw sample values.
	SampleValues []string `json:"sample_values,omitempty"`

	// NumericStats is present for numeric-typed columns.
	NumericStats *NumericStats `json:"numeric_stats,omitempty"`
}

// SheetAnalysis describes one sheet of a tabular document.
type SheetAnalysis struct {
	// Name is the sheet name (or source name for single-sheet kinds).
	Name string `json:"name"`

	// HeaderRow is the detected zero-based header row index.
	HeaderRow int `json:"header_row"`

	// RowCount is the number of data rows below the header.
	RowCount int `json:"row_count"`

	// Columns are the analyzed columns, in sheet order.
	Columns []ColumnAnalysis `json:"columns"`
}

// DocumentAnalysis is the result of analyzing one document.
type DocumentAnalysis struct {
	// DocumentType is a coarse kind tag (e.g. "commission_statement").
	DocumentType string `json:"document_type"`

	// Sheets are the per-sheet analyses.
	Sheets []SheetAnalysis `json:"sheets"`

	// Confidence is the mean column type confidence across all sheets.
	Confidence float64 `json:"confidence"`

	// StructureMarkers carry sheet names, "has:<category>" tags and
	// "doc:<kind>" tags used by schema matching.
	StructureMarkers []string `json:"structure_markers,omitempty"`

	// SuggestedSchemaSlug is set by the caller after schema matching.
	SuggestedSchemaSlug string `json:"suggested_schema_slug,omitempty"`
}

// HasCategory reports whether any column in any sheet carries the category.
func (d *DocumentAnalysis) HasCategory(cat SemanticCategory) bool {
	for _, sheet := range d.Sheets {
		for _, col := range sheet.Columns {
			if col.SemanticCategory == cat {
				return true
			}
		}
	}
	return false
}
