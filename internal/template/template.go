// Package template holds the prompts behind the post-transcription AI
// actions (summarize, translate, rewrite): thin remote-call glue that
// reshapes an already-complete transcript without touching the speech
// recognition it came from.
package template

import (
	"fmt"
)

// Template name constants.
// Use these instead of string literals for compile-time safety.
const (
	Summarize = "summarize"
	Translate = "translate"
	Rewrite   = "rewrite"
)

// ---------------------------------------------------------------------------
// Name type - represents a validated template name
// ---------------------------------------------------------------------------

// Name represents a validated template name.
// Zero value is invalid and must not be used with Prompt().
// Use ParseName to create from user input, or the pre-parsed constants.
type Name struct {
	name string
}

// Pre-parsed template name constants for use in code.
// These avoid parsing overhead and provide compile-time safety.
var (
	SummarizeName = Name{name: Summarize}
	TranslateName = Name{name: Translate}
	RewriteName   = Name{name: Rewrite}
)

// ParseName validates and parses a template name string.
// Returns ErrUnknown if the name is not recognized.
// Empty string returns an error (unlike Language where empty means auto-detect).
func ParseName(s string) (Name, error) {
	if s == "" {
		return Name{}, fmt.Errorf("template name cannot be empty: %w", ErrUnknown)
	}
	if _, ok := templates[s]; !ok {
		return Name{}, fmt.Errorf("unknown template %q: %w", s, ErrUnknown)
	}
	return Name{name: s}, nil
}

// MustParseName parses a template name, panicking if invalid.
// Use only for compile-time constants and tests.
func MustParseName(s string) Name {
	n, err := ParseName(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the template name string.
// Returns empty string for zero value.
func (n Name) String() string {
	return n.name
}

// IsZero returns true if this is the zero value (no template set).
// In CLI commands this means "skip restructuring" (raw transcript output).
// Calling Prompt() on a zero Name will panic.
func (n Name) IsZero() bool {
	return n.name == ""
}

// Prompt returns the prompt string for this template.
// Panics if called on zero value.
func (n Name) Prompt() string {
	if n.name == "" {
		panic("template.Name.Prompt called on zero value")
	}
	return templates[n.name]
}

// templateOrder defines the canonical order for Names().
var templateOrder = []string{
	Summarize,
	Translate,
	Rewrite,
}

// templates maps template names to their prompt strings.
// Prompts are versioned with the binary; update requires rebuild.
var templates = map[string]string{
	Summarize: summarizePrompt,
	Translate: translatePrompt,
	Rewrite:   rewritePrompt,
}

// Get returns the prompt for the given template name.
// Returns ErrUnknown if the name is not recognized.
//
// Deprecated: use ParseName(name).Prompt() instead.
func Get(name string) (string, error) {
	prompt, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q: %w", name, ErrUnknown)
	}
	return prompt, nil
}

// Names returns the list of available template names, in stable order.
func Names() []string {
	result := make([]string, len(templateOrder))
	copy(result, templateOrder)
	return result
}

const summarizePrompt = `You summarize a transcript into concise markdown.

Rules:
- H1 title: main topic identified
- A short "Summary" paragraph (3-5 sentences) capturing the overall content
- "Key Points" section: bullet list of the most important ideas, facts, or decisions
- Preserve names, numbers, and dates exactly as stated
- Do not invent content or alter meaning
- No table of contents`

const translatePrompt = `You translate a transcript into the requested language.

Rules:
- Preserve paragraph structure and approximate sentence boundaries
- Preserve names, numbers, and dates exactly as stated
- Do not summarize, shorten, or omit content
- Do not add commentary or notes about the translation
- Output only the translated text`

const rewritePrompt = `You rewrite a raw transcript into clean, readable prose.

Rules:
- Correct obvious transcription errors (spelling, grammar, punctuation)
- Remove filler words and verbal padding (um, uh, like, you know)
- Preserve every distinct idea, fact, and claim — do not summarize or omit content
- Do not reorder content unless fixing an obvious mid-sentence repair
- Do not invent content or alter meaning
- No table of contents`
