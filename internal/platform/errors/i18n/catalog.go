// Package i18n renders domain errors as localized user-facing messages.
package i18n

import (
	"strings"
	"sync"
	"text/template"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	i18ncatalog "github.com/louisbranch/campplanner/internal/platform/i18n/catalog"
)

// messageSet holds one locale's parsed error templates.
type messageSet struct {
	locale    string
	templates map[apperrors.Code]*template.Template
	raw       map[apperrors.Code]string
}

var (
	setsMu sync.RWMutex
	// sets is keyed by both requested and resolved locale.
	sets = map[string]*messageSet{}
)

// Message renders the user-facing message for err in locale. Errors without
// a domain code render the UNKNOWN template.
func Message(locale string, err error) string {
	if err == nil {
		return ""
	}
	return Render(locale, apperrors.CodeOf(err), apperrors.MetadataOf(err))
}

// Render formats the template for code with metadata. Unknown locales fall
// back to the base locale; a code with no template renders as itself.
func Render(locale string, code apperrors.Code, metadata map[string]string) string {
	return messagesFor(locale).render(code, metadata)
}

func messagesFor(locale string) *messageSet {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = i18ncatalog.BaseLocale
	}
	setsMu.RLock()
	set, ok := sets[requested]
	setsMu.RUnlock()
	if ok {
		return set
	}

	resolved, messages := i18ncatalog.Default().NamespaceMessagesWithFallback(requested, "errors")
	setsMu.Lock()
	defer setsMu.Unlock()
	set, ok = sets[resolved]
	if !ok {
		set = newMessageSet(resolved, messages)
		sets[resolved] = set
	}
	sets[requested] = set
	return set
}

// newMessageSet parses every template once. A template that fails to parse
// renders as its raw text.
func newMessageSet(locale string, messages map[string]string) *messageSet {
	set := &messageSet{
		locale:    locale,
		templates: make(map[apperrors.Code]*template.Template, len(messages)),
		raw:       make(map[apperrors.Code]string, len(messages)),
	}
	for key, text := range messages {
		code := apperrors.Code(key)
		set.raw[code] = text
		if t, err := template.New(key).Option("missingkey=zero").Parse(text); err == nil {
			set.templates[code] = t
		}
	}
	return set
}

func (s *messageSet) render(code apperrors.Code, metadata map[string]string) string {
	text, ok := s.raw[code]
	if !ok {
		return string(code)
	}
	t, ok := s.templates[code]
	if !ok {
		return text
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	var b strings.Builder
	if err := t.Execute(&b, metadata); err != nil {
		return text
	}
	return b.String()
}
