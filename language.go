// ==========================================================================
//
// File Name:  language.go
//
// ==========================================================================

package srcml

import (
	"path"
	"strings"
)

// Supported language names as they appear in the language attribute.
const (
	LanguageC         = "C"
	LanguageCPlusPlus = "C++"
	LanguageCSharp    = "C#"
	LanguageJava      = "Java"
)

// CheckLanguage reports whether a language name is supported.
func CheckLanguage(language string) bool {

	switch language {
	case LanguageC, LanguageCPlusPlus, LanguageCSharp, LanguageJava:
		return true
	default:
		return false
	}
}

// defaultExtensions is the builtin filename extension table. User
// registrations on an archive shadow these entries.
var defaultExtensions = map[string]string{
	"c":    LanguageC,
	"h":    LanguageCPlusPlus,
	"hpp":  LanguageCPlusPlus,
	"hxx":  LanguageCPlusPlus,
	"cpp":  LanguageCPlusPlus,
	"cc":   LanguageCPlusPlus,
	"cxx":  LanguageCPlusPlus,
	"cs":   LanguageCSharp,
	"java": LanguageJava,
	"aj":   LanguageJava,
}

// languageForFilename infers the language from a filename extension,
// consulting user registrations before the builtin table. Compression
// suffixes are stripped first so "main.cpp.gz" resolves like "main.cpp".
func languageForFilename(filename string, registered map[string]string) string {

	name := filename

	for {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
		if ext == "" {
			return ""
		}

		if ext == "gz" || ext == "bz2" {
			name = strings.TrimSuffix(name, path.Ext(name))
			continue
		}

		if registered != nil {
			if lang, ok := registered[ext]; ok {
				return lang
			}
		}

		return defaultExtensions[ext]
	}
}

// languageHasPreprocessor reports whether a language carries cpp markup.
func languageHasPreprocessor(language string) bool {

	switch language {
	case LanguageC, LanguageCPlusPlus, LanguageCSharp:
		return true
	default:
		return false
	}
}
