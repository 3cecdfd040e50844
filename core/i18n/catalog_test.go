package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddedCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load("", "en")
	require.NoError(t, err)
	return c
}

func TestEmbeddedCatalogValid(t *testing.T) {
	c := embeddedCatalog(t)
	require.NoError(t, c.Validate([]string{"en", "hi", "ta"}, []string{"story", "teacher", "parent"}))
}

func TestWelcome(t *testing.T) {
	c := embeddedCatalog(t)
	assert.Equal(t, "Namaste 🙏\nWelcome to *e-Jaadui Pitara*\n_(Powered by Bhashini)_", c.Welcome("en", "e-Jaadui Pitara"))
}

func TestTextFallsBackToDefaultLanguage(t *testing.T) {
	c := embeddedCatalog(t)
	assert.Equal(t, c.Text("en", KeyAPIError), c.Text("ta", KeyAPIError))
	assert.NotEqual(t, c.Text("en", KeyAPIError), c.Text("hi", KeyAPIError))
	assert.Equal(t, "Thanks for your feedback.", c.Text("xx", KeyFeedbackThanks))
}

func TestLanguagesFilteredInCatalogOrder(t *testing.T) {
	c := embeddedCatalog(t)
	langs := c.Languages([]string{"ta", "en"})
	require.Len(t, langs, 2)
	assert.Equal(t, "en", langs[0].Code)
	assert.Equal(t, "ta", langs[1].Code)
	assert.Empty(t, c.Languages(nil))
}

func TestPersonaIntroFallbackChain(t *testing.T) {
	data := []byte(`
languages:
  - {code: en, text: English}
  - {code: hi, text: Hindi}
messages:
  en:
    persona_names: {story: Story}
    persona_intro: {story: "Story intro"}
    persona_intro_generic: "Ask away"
  hi:
    persona_intro_generic: "Poochhiye"
`)
	c, err := Parse(data, "en")
	require.NoError(t, err)

	assert.Equal(t, "Story intro", c.PersonaIntro("hi", "story"))
	assert.Equal(t, "Poochhiye", c.PersonaIntro("hi", "quiz"))
	assert.Equal(t, "Ask away", c.PersonaIntro("en", "quiz"))
	assert.Equal(t, "quiz", c.PersonaName("hi", "quiz"))
}

func TestValidateReportsMissingPersona(t *testing.T) {
	c := embeddedCatalog(t)
	assert.Error(t, c.Validate([]string{"en"}, []string{"story", "wizard"}))
	assert.Error(t, c.Validate([]string{"en", "xx"}, []string{"story"}))
}

func TestParseRequiresFallbackLanguage(t *testing.T) {
	_, err := Parse([]byte("messages:\n  hi: {help: x}\n"), "en")
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("messages:\n  en: {help: custom}\n"), 0o600))
	c, err := Load(path, "en")
	require.NoError(t, err)
	assert.Equal(t, "custom", c.Text("en", KeyHelp))
}
