// Package prompt builds the final image generation prompt from a theme and a recipient name.
package prompt

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/snappy-loop/wishes/internal/models"
)

// Marker is the phrase in preset templates that gets personalized.
const Marker = "Happy New Year 2025"

var (
	ErrEmptyName         = fmt.Errorf("%w: name is required", models.ErrInvalidInput)
	ErrEmptyCustomPrompt = fmt.Errorf("%w: custom prompt is required", models.ErrInvalidInput)
	ErrUnknownTheme      = fmt.Errorf("%w: unknown theme", models.ErrInvalidInput)
)

// Compose returns the prompt for theme personalized with name.
// Preset templates get "Happy New Year 2025 <name>" in place of the marker; a template
// without the marker is returned unchanged. The custom theme uses customText verbatim.
func Compose(name string, theme models.Theme, customText string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}

	if theme.Custom {
		if strings.TrimSpace(customText) == "" {
			return "", ErrEmptyCustomPrompt
		}
		return customText, nil
	}

	return Personalize(theme.Template, name), nil
}

// ComposeFor resolves themeID and composes the prompt.
func ComposeFor(name, themeID, customText string) (string, error) {
	theme, ok := Lookup(themeID)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownTheme, themeID)
	}
	return Compose(name, theme, customText)
}

// Personalize replaces every marker in template with the marker followed by name.
// Markers already followed by name are left alone, so personalizing twice is a no-op.
func Personalize(template, name string) string {
	personalized := Marker + " " + name

	var b strings.Builder
	rest := template
	for {
		i := strings.Index(rest, Marker)
		if i < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:i])
		if alreadyPersonalized(rest[i:], personalized) {
			b.WriteString(personalized)
			rest = rest[i+len(personalized):]
			continue
		}
		b.WriteString(personalized)
		rest = rest[i+len(Marker):]
	}
}

func alreadyPersonalized(s, personalized string) bool {
	if !strings.HasPrefix(s, personalized) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(s[len(personalized):])
	return next == utf8.RuneError || !(unicode.IsLetter(next) || unicode.IsDigit(next))
}
