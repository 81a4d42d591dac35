package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityType(t *testing.T) {
	for _, s := range []string{"project", "element", "relationship", "template"} {
		et, err := ParseEntityType(s)
		require.NoError(t, err)
		assert.Equal(t, s, et.String())
	}
	_, err := ParseEntityType("chapter")
	assert.Error(t, err)
}

func TestWorldElement_RewriteRequiresProject(t *testing.T) {
	e := &WorldElement{ProjectID: "Lp", Name: "Tower", Category: CategoryLocation}

	err := e.Rewrite(func(EntityType, string) (string, bool) { return "", false })
	var unresolved *ErrUnresolvedRef
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, EntityProject, unresolved.Ref.Type)
	assert.Equal(t, "Lp", unresolved.Ref.ID)
}

func TestWorldElement_RewriteOptionalTemplate(t *testing.T) {
	e := &WorldElement{ProjectID: "Lp", TemplateID: "Lt", Name: "Hero", Category: CategoryCharacter}

	// Project resolves, template does not: rewrite succeeds and the template
	// reference is kept as-is.
	err := e.Rewrite(func(et EntityType, id string) (string, bool) {
		if et == EntityProject {
			return "Rp", true
		}
		return "", false
	})
	require.NoError(t, err)
	assert.Equal(t, "Rp", e.ProjectID)
	assert.Equal(t, "Lt", e.TemplateID)
}

func TestRelationship_RewriteAllRefs(t *testing.T) {
	r := &Relationship{ProjectID: "Lp", SourceID: "La", TargetID: "Lb", Type: "ally-of"}

	ids := map[string]string{"Lp": "Rp", "La": "Ra", "Lb": "Rb"}
	err := r.Rewrite(func(_ EntityType, id string) (string, bool) {
		mapped, ok := ids[id]
		return mapped, ok
	})
	require.NoError(t, err)
	assert.Equal(t, "Rp", r.ProjectID)
	assert.Equal(t, "Ra", r.SourceID)
	assert.Equal(t, "Rb", r.TargetID)
}

func TestRelationship_RewriteFailsOnMissingTarget(t *testing.T) {
	r := &Relationship{ProjectID: "Lp", SourceID: "La", TargetID: "Lb", Type: "rival-of"}

	ids := map[string]string{"Lp": "Rp", "La": "Ra"}
	err := r.Rewrite(func(_ EntityType, id string) (string, bool) {
		mapped, ok := ids[id]
		return mapped, ok
	})
	var unresolved *ErrUnresolvedRef
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "Lb", unresolved.Ref.ID)
}

func TestTemplate_GlobalDefaultHasNoRequiredRefs(t *testing.T) {
	tpl := &QuestionnaireTemplate{Name: "Character basics", Category: CategoryCharacter, IsDefault: true}
	require.NoError(t, tpl.Rewrite(func(EntityType, string) (string, bool) { return "", false }))
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(EntityElement, []byte(`{"project_id":"Lp","name":"Keep","category":"location"}`))
	require.NoError(t, err)
	e, ok := p.(*WorldElement)
	require.True(t, ok)
	assert.Equal(t, "Keep", e.Name)

	_, err = DecodePayload(EntityType("chapter"), []byte(`{}`))
	assert.Error(t, err)
}
