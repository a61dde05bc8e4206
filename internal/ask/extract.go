package ask

import (
	"regexp"
	"strings"
)

// Field keywords recognized in answers, mapped to the canonical field key
// the accuracy tests expect.
var fieldKeywords = []struct {
	key      string
	keywords []string
}{
	{"clawback", []string{"환수금액", "환수액", "환수"}},
	{"override", []string{"오버라이드", "OR금액"}},
	{"commission", []string{"수수료", "커미션", "수당"}},
	{"income", []string{"실지급액", "지급액", "소득"}},
	{"rate", []string{"지급율", "지급률", "요율"}},
	{"count", []string{"건수"}},
	{"premium", []string{"보험료"}},
}

// valuePattern matches "항목: 1,250,000원" and "항목은 85.5%" style
// assertions the generation prompt asks for.
var valuePattern = regexp.MustCompile(`([가-힣A-Za-z]+)\s*(?:[:：]|은|는)\s*(-?[\d,]+(?:\.\d+)?)\s*(원|%)?`)

// ExtractValues pulls field→value assertions out of an answer. Values keep
// their digits and decimal point; grouping commas and unit suffixes are
// stripped.
func ExtractValues(answer string) map[string]string {
	matches := valuePattern.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	values := make(map[string]string)
	for _, m := range matches {
		label, raw, unit := m[1], m[2], m[3]

		key := canonicalField(label)
		if key == "" {
			continue
		}
		// First assertion per field wins.
		if _, ok := values[key]; ok {
			continue
		}

		value := strings.ReplaceAll(raw, ",", "")
		if unit == "%" {
			value += "%"
		}
		values[key] = value
	}

	if len(values) == 0 {
		return nil
	}
	return values
}

func canonicalField(label string) string {
	for _, f := range fieldKeywords {
		for _, kw := range f.keywords {
			if strings.Contains(label, kw) {
				return f.key
			}
		}
	}
	return ""
}
