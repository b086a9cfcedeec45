package network

import (
	"sort"

	"golang.org/x/text/language"
)

// DefaultLanguage is used when a requested language has no translation.
const DefaultLanguage = "en"

// Text is a localized string keyed by BCP 47 language tag.
type Text map[string]string

// Clone returns an independent copy of t.
func (t Text) Clone() Text {
	if t == nil {
		return nil
	}
	out := make(Text, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Resolve returns the translation that best matches lang. It falls back to
// DefaultLanguage and then to any translation, and returns "" only when t is
// empty.
func (t Text) Resolve(lang string) string {
	if len(t) == 0 {
		return ""
	}
	if s, ok := t[lang]; ok {
		return s
	}

	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if want, err := language.Parse(lang); err == nil {
		tags := make([]language.Tag, 0, len(keys))
		supported := make([]string, 0, len(keys))
		for _, k := range keys {
			tag, err := language.Parse(k)
			if err != nil {
				continue
			}
			tags = append(tags, tag)
			supported = append(supported, k)
		}
		if len(tags) > 0 {
			_, idx, conf := language.NewMatcher(tags).Match(want)
			if conf != language.No {
				return t[supported[idx]]
			}
		}
	}

	if s, ok := t[DefaultLanguage]; ok {
		return s
	}
	return t[keys[0]]
}
