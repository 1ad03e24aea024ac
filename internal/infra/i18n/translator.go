package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "en"

//go:embed locales
var LocalesFS embed.FS

// Translator holds the bot's user-facing texts for one language.
type Translator struct {
	lang         string
	translations map[string]string
}

// New loads locales/<lang>.yaml from the embedded locales.
func New(lang string) (*Translator, error) {
	if lang == "" {
		lang = DefaultLanguage
	}
	return NewFromFS(LocalesFS, lang)
}

// NewFromFS reads locales/<lang>.yaml from any fs.FS.
func NewFromFS(fsys fs.FS, lang string) (*Translator, error) {
	filePath := path.Join("locales", lang+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = lang
	return t, nil
}

// Default returns the English texts. A broken embed degrades to key echoing.
func Default() *Translator {
	t, err := New(DefaultLanguage)
	if err != nil {
		return &Translator{lang: DefaultLanguage, translations: map[string]string{}}
	}
	return t
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	if translations == nil {
		translations = map[string]string{}
	}
	return &Translator{translations: translations}, nil
}

func (t *Translator) Lang() string { return t.lang }

// T returns the text for key, formatted with args. Unknown keys come back as is.
func (t *Translator) T(key string, args ...any) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
