// Package i18n holds the localized bot texts.
//
// Lookups are two-step: the requested language first, then the catalog
// fallback language. A missing entry in both yields an empty string.
package i18n

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var embedded []byte

// Key names a scalar message.
type Key string

const (
	KeyWelcome             Key = "welcome"
	KeyLanguagePrompt      Key = "language_prompt"
	KeyPersonaPrompt       Key = "persona_prompt"
	KeyPersonaIntroGeneric Key = "persona_intro_generic"
	KeyProcessing          Key = "processing"
	KeyAPIError            Key = "api_error"
	KeyFeedbackPrompt      Key = "feedback_prompt"
	KeyFeedbackThanks      Key = "feedback_thanks"
	KeyFeedbackConfirmed   Key = "feedback_confirmed"
	KeyHelp                Key = "help"
)

var requiredKeys = []Key{
	KeyWelcome, KeyLanguagePrompt, KeyPersonaPrompt, KeyPersonaIntroGeneric,
	KeyProcessing, KeyAPIError, KeyFeedbackPrompt, KeyFeedbackThanks,
	KeyFeedbackConfirmed, KeyHelp,
}

// Language is one selectable language button.
type Language struct {
	Code string `yaml:"code"`
	Text string `yaml:"text"`
}

type messages struct {
	Texts        map[Key]string
	PersonaNames map[string]string
	PersonaIntro map[string]string
}

func (m *messages) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	m.Texts = make(map[Key]string, len(raw))
	for k, v := range raw {
		var err error
		switch k {
		case "persona_names":
			err = v.Decode(&m.PersonaNames)
		case "persona_intro":
			err = v.Decode(&m.PersonaIntro)
		default:
			var s string
			err = v.Decode(&s)
			m.Texts[Key(k)] = s
		}
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

type document struct {
	Languages []Language          `yaml:"languages"`
	Messages  map[string]messages `yaml:"messages"`
}

// Catalog resolves texts by language with a fallback language.
type Catalog struct {
	languages []Language
	messages  map[string]messages
	fallback  string
}

// Parse builds a catalog from YAML data.
func Parse(data []byte, fallback string) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse message catalog: %w", err)
	}
	if _, ok := doc.Messages[fallback]; !ok {
		return nil, fmt.Errorf("message catalog has no texts for fallback language %q", fallback)
	}
	return &Catalog{languages: doc.Languages, messages: doc.Messages, fallback: fallback}, nil
}

// Load reads the catalog from path, or the embedded one when path is empty.
func Load(path, fallback string) (*Catalog, error) {
	if path == "" {
		return Parse(embedded, fallback)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message catalog: %w", err)
	}
	return Parse(data, fallback)
}

// Validate checks that the fallback language covers every key and persona.
func (c *Catalog) Validate(languages, personas []string) error {
	base := c.messages[c.fallback]
	for _, k := range requiredKeys {
		if base.Texts[k] == "" {
			return fmt.Errorf("message catalog: %s missing for %q", k, c.fallback)
		}
	}
	for _, p := range personas {
		if base.PersonaNames[p] == "" {
			return fmt.Errorf("message catalog: persona_names.%s missing for %q", p, c.fallback)
		}
	}
	for _, code := range languages {
		if !slices.ContainsFunc(c.languages, func(l Language) bool { return l.Code == code }) {
			return fmt.Errorf("message catalog: language %q has no button label", code)
		}
	}
	return nil
}

// Languages returns the catalog languages whose code is in supported, in catalog order.
func (c *Catalog) Languages(supported []string) []Language {
	out := make([]Language, 0, len(supported))
	for _, l := range c.languages {
		if slices.Contains(supported, l.Code) {
			out = append(out, l)
		}
	}
	return out
}

// Text returns the message for key in lang.
func (c *Catalog) Text(lang string, key Key) string {
	if s := c.messages[lang].Texts[key]; s != "" {
		return s
	}
	return c.messages[c.fallback].Texts[key]
}

// Welcome renders the welcome text with the bot title inserted.
func (c *Catalog) Welcome(lang, title string) string {
	return strings.ReplaceAll(c.Text(lang, KeyWelcome), "{title}", title)
}

// PersonaName returns the button label for persona.
func (c *Catalog) PersonaName(lang, persona string) string {
	if s := c.messages[lang].PersonaNames[persona]; s != "" {
		return s
	}
	if s := c.messages[c.fallback].PersonaNames[persona]; s != "" {
		return s
	}
	return persona
}

// PersonaIntro returns the intro sent after persona selection.
func (c *Catalog) PersonaIntro(lang, persona string) string {
	if s := c.messages[lang].PersonaIntro[persona]; s != "" {
		return s
	}
	if s := c.messages[c.fallback].PersonaIntro[persona]; s != "" {
		return s
	}
	return c.Text(lang, KeyPersonaIntroGeneric)
}
