package analyzer

import (
	"fmt"
	"sort"
	"strings"
)

// categoryKeywords maps normalized header fragments to semantic categories.
// Korean first: the corpus this analyzer grew up on is Korean commission
// statements, so the Korean vocabulary is the primary signal and the
// English terms cover exports and API-sourced tables.
var categoryKeywords = []struct {
	category SemanticCategory
	keywords []string
}{
	// Clawback before commission: "환수수수료" contains both fragments and
	// must land on clawback.
	{CategoryClawback, []string{"환수", "clawback", "chargeback"}},
	{CategoryOverride, []string{"오버라이드", "오버", "override", "or금액", "or수수료"}},
	{CategoryCommission, []string{"수수료", "커미션", "commission", "시책", "incentive", "수당"}},
	{CategoryIncome, []string{"소득", "실지급", "지급액", "income", "netpay", "payout"}},
	{CategoryIdentifier, []string{"사번", "사원번호", "직원번호", "employeeid", "empid", "empno", "staffid"}},
	{CategoryName, []string{"사원명", "성명", "이름", "직원명", "설계사명", "name"}},
	{CategoryDepartment, []string{"소속", "부서", "지점", "팀", "본부", "department", "branch", "org"}},
	{CategoryPolicy, []string{"증권번호", "계약번호", "policyno", "policynumber", "contractno"}},
	{CategoryInsurer, []string{"보험사", "원수사", "insurer", "carrier"}},
	{CategoryProduct, []string{"상품명", "상품", "보종", "product", "plan"}},
	{CategoryPeriod, []string{"마감월", "귀속월", "기준월", "년월", "월분", "period", "month"}},
	{CategoryDate, []string{"일자", "계약일", "납입일", "지급일", "date", "날짜"}},
	{CategoryRate, []string{"지급율", "지급률", "요율", "수수료율", "rate", "ratio", "비율"}},
	{CategoryCount, []string{"건수", "계약건", "count", "cnt"}},
	{CategoryStatus, []string{"상태", "유지", "실효", "해지", "status"}},
	{CategoryAmount, []string{"금액", "보험료", "월납", "초회", "amount", "premium"}},
}

// categorize assigns a semantic category to a column from its normalized
// name, falling back to the inferred type where the name says nothing.
func categorize(col ColumnAnalysis) SemanticCategory {
	name := col.NormalizedName

	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(name, kw) {
				return entry.category
			}
		}
	}

	// Type-driven fallback.
	switch col.InferredType {
	case TypeIdentifier:
		return CategoryIdentifier
	case TypeCurrency:
		return CategoryAmount
	case TypePercentage:
		return CategoryRate
	case TypeDate:
		return CategoryDate
	case TypePeriod:
		return CategoryPeriod
	}

	// High-uniqueness integer columns usually key the rows.
	if col.InferredType == TypeInteger && col.Uniqueness > 0.95 {
		return CategoryIdentifier
	}

	return ""
}

// classifyDocument assigns a coarse document type from the categories
// present across all sheets.
func classifyDocument(doc *DocumentAnalysis) string {
	switch {
	case doc.HasCategory(CategoryClawback):
		return "clawback_statement"
	case doc.HasCategory(CategoryCommission) && doc.HasCategory(CategoryIdentifier):
		return "commission_statement"
	case doc.HasCategory(CategoryCommission):
		return "commission_summary"
	case doc.HasCategory(CategoryPolicy):
		return "policy_listing"
	case doc.HasCategory(CategoryIdentifier) && doc.HasCategory(CategoryName):
		return "employee_roster"
	default:
		return "tabular_generic"
	}
}

// buildMarkers produces the structure markers schema matching keys on:
// sheet names, one "has:<category>" per distinct category, and a
// "doc:<kind>" tag.
func buildMarkers(doc *DocumentAnalysis) []string {
	seen := make(map[string]struct{})
	var markers []string

	add := func(m string) {
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		markers = append(markers, m)
	}

	for _, sheet := range doc.Sheets {
		if sheet.Name != "" {
			add("sheet:" + sheet.Name)
		}
	}

	var cats []string
	catSeen := make(map[SemanticCategory]struct{})
	for _, sheet := range doc.Sheets {
		for _, col := range sheet.Columns {
			if col.SemanticCategory == "" {
				continue
			}
			if _, ok := catSeen[col.SemanticCategory]; ok {
				continue
			}
			catSeen[col.SemanticCategory] = struct{}{}
			cats = append(cats, string(col.SemanticCategory))
		}
	}
	sort.Strings(cats)
	for _, c := range cats {
		add(fmt.Sprintf("has:%s", c))
	}

	if doc.DocumentType != "" {
		add("doc:" + doc.DocumentType)
	}

	return markers
}
