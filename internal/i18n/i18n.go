package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Locale represents a supported language
type Locale string

const (
	LocaleEn Locale = "en"
	LocaleDe Locale = "de"
)

// Bundle holds all translations for all locales
type Bundle struct {
	mu           sync.RWMutex
	translations map[Locale]map[string]string
	fallback     Locale
}

// NewBundle creates a bundle preloaded with the built-in messages.
func NewBundle(fallback Locale) *Bundle {
	b := &Bundle{
		translations: make(map[Locale]map[string]string),
		fallback:     fallback,
	}
	for locale, msgs := range DefaultMessages() {
		b.LoadMessages(locale, msgs)
	}
	return b
}

func (b *Bundle) Fallback() Locale {
	return b.fallback
}

// LoadDir merges all JSON translation files from a directory over the
// built-in messages. Files are named after their locale: en.json, de.json.
func (b *Bundle) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read i18n dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		locale := Locale(strings.TrimSuffix(entry.Name(), ".json"))
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var msgs map[string]string
		if err := json.Unmarshal(data, &msgs); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		b.LoadMessages(locale, msgs)
	}

	return nil
}

// LoadMessages loads translations for a specific locale from a map
func (b *Bundle) LoadMessages(locale Locale, messages map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.translations[locale]
	if !ok {
		existing = make(map[string]string, len(messages))
		b.translations[locale] = existing
	}
	for k, v := range messages {
		existing[k] = v
	}
}

// T translates a message key for the given locale.
// Falls back to the bundle's fallback locale, then returns the key itself.
func (b *Bundle) T(locale Locale, key string, args ...any) string {
	msg, ok := b.lookup(locale, key)
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// N picks the singular or plural form for n. Both locales shipped here use
// the one/other rule.
func (b *Bundle) N(locale Locale, singularKey, pluralKey string, n int, args ...any) string {
	key := pluralKey
	if n == 1 {
		key = singularKey
	}
	return b.T(locale, key, args...)
}

func (b *Bundle) lookup(locale Locale, key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msgs, ok := b.translations[locale]; ok {
		if msg, ok := msgs[key]; ok {
			return msg, true
		}
	}
	if locale != b.fallback {
		if msgs, ok := b.translations[b.fallback]; ok {
			if msg, ok := msgs[key]; ok {
				return msg, true
			}
		}
	}
	return "", false
}

// Match returns the loaded locale for tag, or the fallback.
func (b *Bundle) Match(tag string) Locale {
	locale := Locale(strings.ToLower(strings.TrimSpace(tag)))
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.translations[locale]; ok {
		return locale
	}
	return b.fallback
}

// ParseAcceptLanguage returns the highest weighted supported locale named by
// the Accept-Language header, or fallback when none is supported.
func ParseAcceptLanguage(header string, fallback Locale) Locale {
	if strings.TrimSpace(header) == "" {
		return fallback
	}

	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return fallback
	}
	for _, tag := range tags {
		base, confidence := tag.Base()
		if confidence == language.No {
			continue
		}
		switch Locale(base.String()) {
		case LocaleEn:
			return LocaleEn
		case LocaleDe:
			return LocaleDe
		}
	}

	return fallback
}

// SupportedLocales returns all locales that have translations loaded
func (b *Bundle) SupportedLocales() []Locale {
	b.mu.RLock()
	defer b.mu.RUnlock()

	locales := make([]Locale, 0, len(b.translations))
	for l := range b.translations {
		locales = append(locales, l)
	}
	return locales
}

// DateLayout is the Go time layout used for dates shown in the given locale.
func (b *Bundle) DateLayout(locale Locale) string {
	return b.T(locale, "format.date")
}
