// Package i18n loads the embedded chat message catalogs and translates message
// ids for one operator language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// localeFS embeds the YAML catalogs.
//
//go:embed locales/*.yaml
var localeFS embed.FS

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "en"

// NewBundle parses every embedded catalog into a bundle whose fallback is English.
func NewBundle() (*goi18n.Bundle, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	for _, lang := range Supported() {
		data, err := catalogBytes(lang)
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", lang, err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, lang+".yaml"); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", lang, err)
		}
	}
	return bundle, nil
}

// Supported lists the languages that have a catalog.
func Supported() []string {
	files, _ := fs.ReadDir(localeFS, "locales")
	langs := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		langs = append(langs, strings.TrimSuffix(f.Name(), path.Ext(f.Name())))
	}
	return langs
}

// IsSupported reports whether lang has a catalog.
func IsSupported(lang string) bool {
	return slices.Contains(Supported(), lang)
}

func catalogBytes(lang string) ([]byte, error) {
	return localeFS.ReadFile(path.Join("locales", lang+".yaml"))
}

// Translator renders messages in a single language.
type Translator struct {
	localizer *goi18n.Localizer
	lang      string
}

// New builds a Translator for lang. Unknown languages fall back to English.
func New(lang string) (*Translator, error) {
	bundle, err := NewBundle()
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	return &Translator{
		localizer: goi18n.NewLocalizer(bundle, lang, DefaultLanguage),
		lang:      lang,
	}, nil
}

// MustNew is New for embedded catalogs known to parse, used by tests and tools.
func MustNew(lang string) *Translator {
	t, err := New(lang)
	if err != nil {
		panic(err)
	}
	return t
}

// Language returns the configured language tag.
func (t *Translator) Language() string {
	return t.lang
}

// T translates messageID. A missing id is returned as is.
func (t *Translator) T(messageID string) string {
	return t.Tf(messageID, nil)
}

// Tf translates messageID, executing its template with data.
func (t *Translator) Tf(messageID string, data map[string]any) string {
	msg, err := t.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}
