package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 200

// CreateInput carries the caller-supplied fields for a new artifact. Which
// fields are required depends on Kind.
type CreateInput struct {
	Kind        Kind
	Name        string
	Role        PromptRole
	Content     string
	Description string
	Category    string
	Code        string
	Tags        []string
}

// Validate normalizes the input and builds the artifact to persist. The
// returned artifact has no ID and no timestamp; the service assigns both.
func (in CreateInput) Validate() (Artifact, error) {
	if !in.Kind.Valid() {
		return Artifact{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, in.Kind)
	}

	name, err := normalizeName(in.Name)
	if err != nil {
		return Artifact{}, err
	}

	a := Artifact{
		Kind: in.Kind,
		Name: name,
		Tags: normalizeTags(in.Tags),
	}

	switch in.Kind {
	case KindPrompt:
		if err := validateRole(in.Role); err != nil {
			return Artifact{}, err
		}
		if strings.TrimSpace(in.Content) == "" {
			return Artifact{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
		}
		a.Role = in.Role
		a.Content = in.Content
	case KindResource:
		if strings.TrimSpace(in.Description) == "" {
			return Artifact{}, fmt.Errorf("%w: description is required", ErrInvalidInput)
		}
		if strings.TrimSpace(in.Content) == "" {
			return Artifact{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
		}
		if strings.TrimSpace(in.Category) == "" {
			return Artifact{}, fmt.Errorf("%w: category is required", ErrInvalidInput)
		}
		a.Description = in.Description
		a.Content = in.Content
		a.Category = in.Category
	case KindTool:
		if strings.TrimSpace(in.Description) == "" {
			return Artifact{}, fmt.Errorf("%w: description is required", ErrInvalidInput)
		}
		if strings.TrimSpace(in.Code) == "" {
			return Artifact{}, fmt.Errorf("%w: code is required", ErrInvalidInput)
		}
		a.Description = in.Description
		a.Code = in.Code
	}

	return a, nil
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string
	Role        *PromptRole
	Content     *string
	Description *string
	Category    *string
	Code        *string
	Tags        *[]string
}

func (in UpdateInput) Empty() bool {
	return in.Name == nil && in.Role == nil && in.Content == nil &&
		in.Description == nil && in.Category == nil && in.Code == nil && in.Tags == nil
}

// Apply validates the patch against the artifact's kind and returns the
// updated record. Fields that do not belong to the kind are rejected rather
// than silently dropped.
func (in UpdateInput) Apply(a Artifact) (Artifact, error) {
	if in.Empty() {
		return Artifact{}, fmt.Errorf("%w: provide at least one field to update", ErrInvalidInput)
	}

	if in.Role != nil && a.Kind != KindPrompt {
		return Artifact{}, fmt.Errorf("%w: role applies only to prompts", ErrInvalidInput)
	}
	if in.Category != nil && a.Kind != KindResource {
		return Artifact{}, fmt.Errorf("%w: category applies only to resources", ErrInvalidInput)
	}
	if in.Code != nil && a.Kind != KindTool {
		return Artifact{}, fmt.Errorf("%w: code applies only to tools", ErrInvalidInput)
	}
	if in.Description != nil && a.Kind == KindPrompt {
		return Artifact{}, fmt.Errorf("%w: description does not apply to prompts", ErrInvalidInput)
	}
	if in.Content != nil && a.Kind == KindTool {
		return Artifact{}, fmt.Errorf("%w: content does not apply to tools", ErrInvalidInput)
	}

	if in.Name != nil {
		name, err := normalizeName(*in.Name)
		if err != nil {
			return Artifact{}, err
		}
		a.Name = name
	}
	if in.Role != nil {
		if err := validateRole(*in.Role); err != nil {
			return Artifact{}, err
		}
		a.Role = *in.Role
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return Artifact{}, fmt.Errorf("%w: content cannot be empty", ErrInvalidInput)
		}
		a.Content = *in.Content
	}
	if in.Description != nil {
		if strings.TrimSpace(*in.Description) == "" {
			return Artifact{}, fmt.Errorf("%w: description cannot be empty", ErrInvalidInput)
		}
		a.Description = *in.Description
	}
	if in.Category != nil {
		if strings.TrimSpace(*in.Category) == "" {
			return Artifact{}, fmt.Errorf("%w: category cannot be empty", ErrInvalidInput)
		}
		a.Category = *in.Category
	}
	if in.Code != nil {
		if strings.TrimSpace(*in.Code) == "" {
			return Artifact{}, fmt.Errorf("%w: code cannot be empty", ErrInvalidInput)
		}
		a.Code = *in.Code
	}
	if in.Tags != nil {
		a.Tags = normalizeTags(*in.Tags)
	}

	return a, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: name must be valid UTF-8", ErrInvalidInput)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("%w: name max length is %d", ErrInvalidInput, maxNameLength)
	}
	return name, nil
}

func validateRole(role PromptRole) error {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	}
	return fmt.Errorf("%w: role must be one of %s", ErrInvalidInput, strings.Join(PromptRoles(), ", "))
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
