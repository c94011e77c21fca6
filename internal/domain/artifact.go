package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindPrompt   Kind = "prompt"
	KindResource Kind = "resource"
	KindTool     Kind = "tool"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPrompt, KindResource, KindTool:
		return true
	}
	return false
}

type PromptRole string

const (
	RoleSystem    PromptRole = "system"
	RoleUser      PromptRole = "user"
	RoleAssistant PromptRole = "assistant"
)

func PromptRoles() []string {
	return []string{string(RoleSystem), string(RoleUser), string(RoleAssistant)}
}

// Artifact is the tagged union over the three stored record kinds. Kind
// decides which of the kind-specific fields carry meaning; the rest stay
// zero. A single struct lets the store and the index synchronizer treat all
// kinds uniformly.
type Artifact struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`

	// prompt fields
	Role    PromptRole `json:"role,omitempty"`
	Content string     `json:"content,omitempty"` // prompt body or resource body

	// resource fields
	Description string `json:"description,omitempty"` // resource or tool description
	Category    string `json:"category,omitempty"`

	// tool fields
	Code string `json:"code,omitempty"`
}

// SearchableText derives the embedding input. The derivation is the only
// text the vector index ever sees, so it must stay byte-identical between
// the write path and any rebuild: same fields, same order, same separator.
func (a Artifact) SearchableText() string {
	var parts []string
	switch a.Kind {
	case KindPrompt:
		parts = []string{a.Name, string(a.Role), a.Content, strings.Join(a.Tags, ",")}
	case KindResource:
		parts = []string{a.Name, a.Description, a.Content, strings.Join(a.Tags, ",")}
	case KindTool:
		parts = []string{a.Name, a.Description, a.Code, strings.Join(a.Tags, ",")}
	}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}

// URI format: resource:///<id>
func (a Artifact) URI() string {
	return "resource:///" + a.ID
}

// NewID returns "<kind>_<8 hex chars>", e.g. prompt_1a2b3c4d.
func NewID(kind Kind) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return string(kind) + "_" + raw[:8]
}

func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
