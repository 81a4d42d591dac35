// Package model defines the worldbuilding domain entities shared by the
// client and the server: projects, world elements, relationships and
// questionnaire templates, plus the typed answer values elements carry.
//
// All four entity kinds follow the same create/update/tombstone lifecycle and
// are synchronized by the same generic machinery; the per-kind payloads here
// only describe the domain fields.
package model

import (
	"encoding/json"
	"fmt"
)

// EntityType identifies one of the synchronized entity kinds.
type EntityType string

const (
	EntityProject      EntityType = "project"
	EntityElement      EntityType = "element"
	EntityRelationship EntityType = "relationship"
	EntityTemplate     EntityType = "template"
)

// SyncOrder lists entity types in dependency order: parents before children.
// The downloader applies remote pages in this order so references resolve.
var SyncOrder = []EntityType{EntityProject, EntityTemplate, EntityElement, EntityRelationship}

func (t EntityType) Valid() bool {
	switch t {
	case EntityProject, EntityElement, EntityRelationship, EntityTemplate:
		return true
	}
	return false
}

func (t EntityType) String() string { return string(t) }

// ParseEntityType validates a wire-level entity type string.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// Category is the fixed set of world element categories.
type Category string

const (
	CategoryCharacter Category = "character"
	CategoryLocation  Category = "location"
	CategoryItem      Category = "item"
	CategoryFaction   Category = "faction"
	CategoryEvent     Category = "event"
	CategoryConcept   Category = "concept"
	CategoryCreature  Category = "creature"
	CategoryCustom    Category = "custom"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryCharacter, CategoryLocation, CategoryItem, CategoryFaction,
		CategoryEvent, CategoryConcept, CategoryCreature, CategoryCustom:
		return true
	}
	return false
}

// Ref is a reference from one entity payload to another entity. IDs inside
// payloads are local ids until first upload; the uploader rewrites them to
// remote ids on push and the downloader rewrites remote ids back to local
// ones on merge.
type Ref struct {
	Type EntityType
	ID   string
	// Optional refs (e.g. an element without a template) may be empty and do
	// not gate upload ordering.
	Optional bool
}

// Payload is implemented by all entity payloads. Rewrite calls resolve for
// every non-empty reference and replaces it with the returned id; when a
// required reference does not resolve, Rewrite reports it so the caller can
// defer the mutation.
type Payload interface {
	Refs() []Ref
	Rewrite(resolve func(EntityType, string) (string, bool)) error
}

// ErrUnresolvedRef is returned (wrapped) by Rewrite for a required reference
// with no known mapping.
type ErrUnresolvedRef struct {
	Ref Ref
}

func (e *ErrUnresolvedRef) Error() string {
	return fmt.Sprintf("unresolved %s reference %s", e.Ref.Type, e.Ref.ID)
}

// Project is a writing project owned by exactly one user.
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (p *Project) Refs() []Ref { return nil }

func (p *Project) Rewrite(func(EntityType, string) (string, bool)) error { return nil }

// WorldElement belongs to exactly one project and optionally follows a
// questionnaire template whose answers it carries.
type WorldElement struct {
	ProjectID  string     `json:"project_id"`
	Name       string     `json:"name"`
	Category   Category   `json:"category"`
	TemplateID string     `json:"template_id,omitempty"`
	Answers    AnswerList `json:"answers,omitempty"`
	// Attachments holds remote storage keys of files uploaded through the
	// presign endpoint.
	Attachments []string `json:"attachments,omitempty"`
}

func (e *WorldElement) Refs() []Ref {
	return []Ref{
		{Type: EntityProject, ID: e.ProjectID},
		{Type: EntityTemplate, ID: e.TemplateID, Optional: true},
	}
}

func (e *WorldElement) Rewrite(resolve func(EntityType, string) (string, bool)) error {
	id, ok := resolve(EntityProject, e.ProjectID)
	if !ok {
		return &ErrUnresolvedRef{Ref: Ref{Type: EntityProject, ID: e.ProjectID}}
	}
	e.ProjectID = id
	if e.TemplateID != "" {
		if id, ok := resolve(EntityTemplate, e.TemplateID); ok {
			e.TemplateID = id
		}
	}
	return nil
}

// Relationship is a directed edge between two world elements in the same
// project. Self-loops are allowed; forbidding them is a UI policy.
type Relationship struct {
	ProjectID   string            `json:"project_id"`
	SourceID    string            `json:"source_id"`
	TargetID    string            `json:"target_id"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (r *Relationship) Refs() []Ref {
	return []Ref{
		{Type: EntityProject, ID: r.ProjectID},
		{Type: EntityElement, ID: r.SourceID},
		{Type: EntityElement, ID: r.TargetID},
	}
}

func (r *Relationship) Rewrite(resolve func(EntityType, string) (string, bool)) error {
	for _, f := range []struct {
		t  EntityType
		id *string
	}{
		{EntityProject, &r.ProjectID},
		{EntityElement, &r.SourceID},
		{EntityElement, &r.TargetID},
	} {
		mapped, ok := resolve(f.t, *f.id)
		if !ok {
			return &ErrUnresolvedRef{Ref: Ref{Type: f.t, ID: *f.id}}
		}
		*f.id = mapped
	}
	return nil
}

// Question is one entry of a questionnaire template.
type Question struct {
	ID      string    `json:"id"`
	Prompt  string    `json:"prompt"`
	Kind    ValueKind `json:"kind"`
	Options []string  `json:"options,omitempty"`
}

// QuestionnaireTemplate defines the ordered questions an element of a given
// category answers. Templates with an empty project reference are global
// defaults outside project scope.
type QuestionnaireTemplate struct {
	ProjectID string     `json:"project_id,omitempty"`
	Name      string     `json:"name"`
	Category  Category   `json:"category"`
	Questions []Question `json:"questions"`
	IsDefault bool       `json:"is_default,omitempty"`
}

func (t *QuestionnaireTemplate) Refs() []Ref {
	return []Ref{{Type: EntityProject, ID: t.ProjectID, Optional: t.ProjectID == ""}}
}

func (t *QuestionnaireTemplate) Rewrite(resolve func(EntityType, string) (string, bool)) error {
	if t.ProjectID == "" {
		return nil
	}
	id, ok := resolve(EntityProject, t.ProjectID)
	if !ok {
		return &ErrUnresolvedRef{Ref: Ref{Type: EntityProject, ID: t.ProjectID}}
	}
	t.ProjectID = id
	return nil
}

// NewPayload returns an empty payload value for the given entity type.
func NewPayload(t EntityType) (Payload, error) {
	switch t {
	case EntityProject:
		return &Project{}, nil
	case EntityElement:
		return &WorldElement{}, nil
	case EntityRelationship:
		return &Relationship{}, nil
	case EntityTemplate:
		return &QuestionnaireTemplate{}, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
}

// DecodePayload unmarshals raw JSON into the typed payload for t.
func DecodePayload(t EntityType, data []byte) (Payload, error) {
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", t, err)
	}
	return p, nil
}
