package analyzer

import (
	"strings"
	"testing"

	"github.com/surisearch/suri-search/internal/pkg/logger"
)

func testAnalyzer() *Analyzer {
	return New(logger.Default())
}

func TestClassifyValue(t *testing.T) {
	tests := []struct {
		value string
		want  ValueType
	}{
		{"A12345", TypeIdentifier},
		{"Z00001", TypeIdentifier},
		{"AB12345", TypeString},
		{"true", TypeBoolean},
		{"아니오", TypeBoolean},
		{"Y", TypeBoolean},
		{"12.5%", TypePercentage},
		{"1,250,000원", TypeCurrency},
		{"₩1,250,000", TypeCurrency},
		{"2025-03-15", TypeDate},
		{"2025년 3월 15일", TypeDate},
		{"2025-03", TypePeriod},
		{"202503", TypePeriod},
		{"42", TypeInteger},
		{"-17", TypeInteger},
		{"3.14", TypeDecimal},
		{"hello", TypeString},
		{"홍길동", TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if got := classifyValue(tt.value); got != tt.want {
				t.Errorf("classifyValue(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestAnalyzeColumnDominantType(t *testing.T) {
	values := []string{"1,000원", "2,500원", "1,200원", "900원", "oops"}
	col := analyzeColumn("수수료", values, false)

	if col.InferredType != TypeCurrency {
		t.Errorf("InferredType = %v, want currency", col.InferredType)
	}
	if col.TypeConfidence != 0.8 {
		t.Errorf("TypeConfidence = %v, want 0.8", col.TypeConfidence)
	}
}

func TestAnalyzeColumnMixedDowngrade(t *testing.T) {
	// Two currency, one integer, two strings: no type clears 60%, and
	// string values are present, so the column is mixed at 0.5.
	values := []string{"1,000원", "2,000원", "42", "abc", "def"}
	col := analyzeColumn("비고", values, false)

	if col.InferredType != TypeMixed {
		t.Errorf("InferredType = %v, want mixed", col.InferredType)
	}
	if col.TypeConfidence != 0.5 {
		t.Errorf("TypeConfidence = %v, want 0.5", col.TypeConfidence)
	}
}

func TestAnalyzeColumnNumberCoalescing(t *testing.T) {
	// Integers and decimals mixed together are one numeric column, not a
	// low-confidence split.
	values := []string{"1", "2", "3.5", "4", "5.25"}
	col := analyzeColumn("값", values, false)

	if col.InferredType != TypeNumber {
		t.Errorf("InferredType = %v, want number", col.InferredType)
	}
	if col.TypeConfidence != 1.0 {
		t.Errorf("TypeConfidence = %v, want 1.0", col.TypeConfidence)
	}
	if col.NumericStats == nil {
		t.Fatal("NumericStats is nil for numeric column")
	}
	if col.NumericStats.Min != 1 || col.NumericStats.Max != 5.25 {
		t.Errorf("stats = %+v, want min 1 max 5.25", col.NumericStats)
	}
}

func TestAnalyzeColumnUniqueness(t *testing.T) {
	values := []string{"A11111", "A22222", "A33333", "A11111"}
	col := analyzeColumn("사번", values, false)

	if col.Uniqueness != 0.75 {
		t.Errorf("Uniqueness = %v, want 0.75", col.Uniqueness)
	}
	if col.SemanticCategory != CategoryIdentifier {
		t.Errorf("SemanticCategory = %v, want identifier", col.SemanticCategory)
	}
}

func TestAnalyzeColumnEmptyValuesCategorizedByName(t *testing.T) {
	col := analyzeColumn("수수료", nil, true)

	if col.InferredType != TypeString {
		t.Errorf("InferredType = %v, want string", col.InferredType)
	}
	if col.SemanticCategory != CategoryCommission {
		t.Errorf("SemanticCategory = %v, want commission", col.SemanticCategory)
	}
}

func TestAnalyzeSheetsMultiSheet(t *testing.T) {
	a := testAnalyzer()
	doc := a.AnalyzeSheets(map[string][][]string{
		"환수내역": {
			{"사번", "환수금액"},
			{"A11111", "-50,000원"},
		},
		"수수료명세": {
			{"사번", "사원명", "수수료"},
			{"A11111", "김철수", "1,250,000원"},
			{"B22222", "이영희", "980,000원"},
		},
	})

	if len(doc.Sheets) != 2 {
		t.Fatalf("len(Sheets) = %d, want 2", len(doc.Sheets))
	}
	// Sheets come back in name order regardless of map iteration.
	if doc.Sheets[0].Name != "수수료명세" || doc.Sheets[1].Name != "환수내역" {
		t.Errorf("sheet order = %q, %q", doc.Sheets[0].Name, doc.Sheets[1].Name)
	}
	if doc.Sheets[0].Columns[0].SemanticCategory != CategoryIdentifier {
		t.Errorf("사번 category = %v, want identifier", doc.Sheets[0].Columns[0].SemanticCategory)
	}
	if doc.DocumentType == "" || doc.DocumentType == "unknown" {
		t.Errorf("DocumentType = %q, want a classified type", doc.DocumentType)
	}
}

func TestAnalyzeSheetsEmpty(t *testing.T) {
	doc := testAnalyzer().AnalyzeSheets(nil)

	if doc.DocumentType != "unknown" {
		t.Errorf("DocumentType = %q, want unknown", doc.DocumentType)
	}
	if doc.Confidence != 0.1 {
		t.Errorf("Confidence = %v, want 0.1", doc.Confidence)
	}
}

func TestAnalyzeColumnSampleCap(t *testing.T) {
	values := make([]string, 50)
	for i := range values {
		values[i] = "v"
	}
	col := analyzeColumn("col", values, false)

	if len(col.SampleValues) != 10 {
		t.Errorf("len(SampleValues) = %d, want 10", len(col.SampleValues))
	}
}

func TestDetectHeaderRow(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want int
	}{
		{
			name: "first row",
			rows: [][]string{
				{"사번", "사원명", "수수료"},
				{"A11111", "홍길동", "1000"},
			},
			want: 0,
		},
		{
			name: "title row above header",
			rows: [][]string{
				{"2025년 3월 마감", "", ""},
				{"", "", ""},
				{"사번", "사원명", "소속", "수수료"},
				{"A11111", "홍길동", "서울", "1000"},
			},
			want: 2,
		},
		{
			name: "no qualifying row defaults to zero",
			rows: [][]string{
				{"1", "2"},
				{"3", "4"},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectHeaderRow(tt.rows); got != tt.want {
				t.Errorf("detectHeaderRow() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"사원 명", "사원명"},
		{"[사원명]", "사원명"},
		{"Employee_ID", "employeeid"},
		{"지급율(%)", "지급율"},
		{"OR 금액", "or금액"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnalyzeCSV(t *testing.T) {
	csvData := strings.Join([]string{
		"사번,사원명,소속,마감월,수수료,지급율",
		"A11111,홍길동,서울지점,202503,\"1,250,000원\",85.5%",
		"A22222,김철수,부산지점,202503,\"980,000원\",82.0%",
		"A33333,이영희,서울지점,202503,\"2,100,000원\",90.1%",
	}, "\n")

	doc := testAnalyzer().Analyze("인별명세", []byte(csvData), "csv")

	if len(doc.Sheets) != 1 {
		t.Fatalf("len(Sheets) = %d, want 1", len(doc.Sheets))
	}
	sheet := doc.Sheets[0]
	if sheet.HeaderRow != 0 {
		t.Errorf("HeaderRow = %d, want 0", sheet.HeaderRow)
	}
	if sheet.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", sheet.RowCount)
	}
	if len(sheet.Columns) != 6 {
		t.Fatalf("len(Columns) = %d, want 6", len(sheet.Columns))
	}

	if doc.DocumentType != "commission_statement" {
		t.Errorf("DocumentType = %q, want commission_statement", doc.DocumentType)
	}
	if !doc.HasCategory(CategoryCommission) {
		t.Error("expected commission category")
	}
	if !doc.HasCategory(CategoryIdentifier) {
		t.Error("expected identifier category")
	}

	wantMarkers := []string{"sheet:인별명세", "has:commission", "doc:commission_statement"}
	for _, want := range wantMarkers {
		found := false
		for _, m := range doc.StructureMarkers {
			if m == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("marker %q missing from %v", want, doc.StructureMarkers)
		}
	}
}

func TestAnalyzeUnparseable(t *testing.T) {
	doc := testAnalyzer().Analyze("garbage", []byte("\"unterminated,quote\nrow2"), "csv")

	if doc == nil {
		t.Fatal("Analyze returned nil for unparseable input")
	}
	if doc.Confidence != 0.1 {
		t.Errorf("Confidence = %v, want 0.1", doc.Confidence)
	}
	if doc.DocumentType != "unknown" {
		t.Errorf("DocumentType = %q, want unknown", doc.DocumentType)
	}
	if len(doc.Sheets) != 0 {
		t.Errorf("len(Sheets) = %d, want 0", len(doc.Sheets))
	}
}

func TestAnalyzeJSONL(t *testing.T) {
	data := strings.Join([]string{
		`{"사번": "A11111", "수수료": 1250000, "환수금액": -30000}`,
		`{"사번": "A22222", "수수료": 980000, "환수금액": 0}`,
	}, "\n")

	doc := testAnalyzer().Analyze("rows", []byte(data), "")

	if len(doc.Sheets) != 1 {
		t.Fatalf("len(Sheets) = %d, want 1", len(doc.Sheets))
	}
	if doc.DocumentType != "clawback_statement" {
		t.Errorf("DocumentType = %q, want clawback_statement", doc.DocumentType)
	}
}

func TestSniffKind(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"json object", `{"a": 1}`, "jsonl"},
		{"json array", `[{"a": 1}]`, "jsonl"},
		{"tab separated", "a\tb\tc\n1\t2\t3", "tsv"},
		{"comma separated", "a,b,c\n1,2,3", "csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffKind([]byte(tt.data)); got != tt.want {
				t.Errorf("sniffKind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCategorizeClawbackBeforeCommission(t *testing.T) {
	col := ColumnAnalysis{NormalizedName: "환수수수료"}
	if got := categorize(col); got != CategoryClawback {
		t.Errorf("categorize = %v, want clawback", got)
	}
}
