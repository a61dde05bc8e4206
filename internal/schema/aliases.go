package schema

// categoryAliases is the domain synonym dictionary. Discovery seeds new
// fields with these, and the optimizer draws from the same table when a
// value_mismatch pattern asks for an alias addition.
var categoryAliases = map[string][]string{
	"identifier": {"사번", "사원번호", "직원번호", "employee id", "emp no"},
	"name":       {"사원명", "성명", "이름", "직원명", "name"},
	"department": {"소속", "부서", "지점", "department", "branch"},
	"date":       {"일자", "날짜", "date"},
	"period":     {"마감월", "귀속월", "기준월", "period", "month"},
	"amount":     {"금액", "보험료", "amount", "premium"},
	"commission": {"수수료", "커미션", "수당", "commission", "fee"},
	"override":   {"오버라이드", "OR", "override"},
	"policy":     {"증권번호", "계약번호", "policy number", "contract no"},
	"clawback":   {"환수", "환수금", "clawback", "chargeback"},
	"income":     {"소득", "실지급액", "지급액", "income", "net pay"},
	"count":      {"건수", "계약건수", "count"},
	"rate":       {"지급율", "지급률", "요율", "rate", "ratio"},
	"status":     {"상태", "유지여부", "status"},
	"insurer":    {"보험사", "원수사", "insurer", "carrier"},
	"product":    {"상품명", "보종", "product", "plan"},
}

// AliasesForCategory returns the dictionary aliases for a semantic
// category, nil when the category is unknown.
func AliasesForCategory(category string) []string {
	return categoryAliases[category]
}
