package merge

import (
	"regexp"
	"sort"
	"strings"
)

// Terminology replaces source-language terms a provider left untranslated
// with one canonical target-language rendering.
type Terminology struct {
	pattern *regexp.Regexp
	table   map[string]string
}

// NewTerminology compiles a substitution table. Matching is whole-word and
// case-insensitive; keys are compared in lower case.
func NewTerminology(table map[string]string) *Terminology {
	if len(table) == 0 {
		return nil
	}

	lower := make(map[string]string, len(table))
	keys := make([]string, 0, len(table))
	for k, v := range table {
		k = strings.ToLower(k)
		lower[k] = v
		keys = append(keys, k)
	}
	// Longest first so multi-word terms win over their parts.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}

	return &Terminology{
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
		table:   lower,
	}
}

// Apply performs a single substitution pass.
func (t *Terminology) Apply(text string) string {
	if t == nil {
		return text
	}
	return t.pattern.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := t.table[strings.ToLower(m)]; ok {
			return v
		}
		return m
	})
}

var technicalTerms = map[string]map[string]string{
	"ar": {
		"algorithm": "خوارزمية",
		"database":  "قاعدة بيانات",
		"server":    "خادم",
		"client":    "عميل",
		"network":   "شبكة",
		"protocol":  "بروتوكول",
		"interface": "واجهة",
		"framework": "إطار عمل",
	},
}

var academicTerms = map[string]map[string]string{
	"ar": {
		"research":     "بحث",
		"study":        "دراسة",
		"analysis":     "تحليل",
		"methodology":  "منهجية",
		"hypothesis":   "فرضية",
		"conclusion":   "خلاصة",
		"abstract":     "ملخص",
		"bibliography": "قائمة مراجع",
	},
}

// TermsFor returns the terminology table for a text type and target
// language, or nil when there is none. Only "technical" and "academic"
// texts have tables.
func TermsFor(textType, lang string) *Terminology {
	switch textType {
	case "technical":
		return NewTerminology(technicalTerms[lang])
	case "academic":
		return NewTerminology(academicTerms[lang])
	default:
		return nil
	}
}
