package translation

import "regexp"

// TextType selects the prompt template and terminology table.
type TextType string

const (
	TextGeneral   TextType = "general"
	TextTechnical TextType = "technical"
	TextAcademic  TextType = "academic"
)

// ParseTextType maps a configuration value to a TextType. Unknown values
// yield "" which means detect from the document.
func ParseTextType(s string) TextType {
	switch TextType(s) {
	case TextGeneral, TextTechnical, TextAcademic:
		return TextType(s)
	default:
		return ""
	}
}

var technicalIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(algorithm|function|variable|equation|formula)\b`),
	regexp.MustCompile(`(?i)\b(api|http|json|xml|sql)\b`),
	regexp.MustCompile(`(?i)\b(server|database|network|protocol)\b`),
	regexp.MustCompile(`[=+\-*/]|\b\d+\.\d+\b`),
	regexp.MustCompile(`(?i)\b(fig\.|table|figure)\s+\d+`),
}

var academicIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(research|study|analysis|methodology)\b`),
	regexp.MustCompile(`(?i)\b(hypothesis|conclusion|abstract|bibliography)\b`),
	regexp.MustCompile(`(?i)\b(et al\.|ibid\.|op\. cit\.)`),
	regexp.MustCompile(`\[\d+\]|\(\d{4}\)`),
	regexp.MustCompile(`(?i)\b(p\.|pp\.|vol\.|no\.)\s*\d+`),
}

func score(text string, indicators []*regexp.Regexp) int {
	n := 0
	for _, re := range indicators {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

// DetectTextType scores the whole document against the technical and
// academic indicator sets. A type needs more than two matching indicators;
// technical wins only when it also outscores academic.
func DetectTextType(text string) TextType {
	technical := score(text, technicalIndicators)
	academic := score(text, academicIndicators)

	switch {
	case technical > academic && technical > 2:
		return TextTechnical
	case academic > 2:
		return TextAcademic
	default:
		return TextGeneral
	}
}
