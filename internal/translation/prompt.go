package translation

import "fmt"

var languageNames = map[string]string{
	"ar": "Arabic",
	"en": "English",
	"de": "German",
	"fr": "French",
	"es": "Spanish",
	"bg": "Bulgarian",
	"ru": "Russian",
	"tr": "Turkish",
}

// LanguageName returns the English name of an ISO 639-1 code, or the code
// itself when it is not known.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

const (
	technicalTemplate = `You are a translator specialised in technical and scientific texts.
Translate the text below into %s.
- Keep technical terms precise and consistent across the text.
- Translate equations and symbols carefully; do not alter code or formulas.
- Preserve the structure of scientific sentences.
The text may begin with a short excerpt of the preceding passage for context.
Respond with the %s translation only.`

	academicTemplate = `You are an academic translator specialised in research papers.
Translate the text below into %s.
- Keep a formal academic style.
- Keep references, citations and quotations exact.
- Use established research terminology.
The text may begin with a short excerpt of the preceding passage for context.
Respond with the %s translation only.`

	generalTemplate = `Translate the text below into natural, clear %s.
Preserve the original meaning and use idiomatic expressions.
The text may begin with a short excerpt of the preceding passage for context.
Respond with the %s translation only.`
)

// Instructions returns the system prompt for a text type and target language.
func Instructions(textType TextType, targetLang string) string {
	lang := LanguageName(targetLang)
	tmpl := generalTemplate
	switch textType {
	case TextTechnical:
		tmpl = technicalTemplate
	case TextAcademic:
		tmpl = academicTemplate
	}
	return fmt.Sprintf(tmpl, lang, lang)
}

// PromptText joins the context excerpt and the chunk exactly as they are
// sent to the provider.
func PromptText(context, chunk string) string {
	if context == "" {
		return chunk
	}
	return context + "\n\n" + chunk
}
