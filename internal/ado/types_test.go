package ado

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkItemTypeAndTitle(t *testing.T) {
	item := &WorkItem{ID: 7, Fields: map[string]any{
		FieldWorkItemType: "Bug",
		FieldTitle:        "Login times out",
	}}

	assert.Equal(t, "Bug", item.Type())
	assert.Equal(t, "Login times out", item.Title())

	empty := &WorkItem{Fields: map[string]any{}}
	assert.Equal(t, "", empty.Type())
	assert.Equal(t, "", empty.Title())
}

func TestRelationTargetID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		id   int
		ok   bool
	}{
		{"work item url", "https://dev.azure.com/org/_apis/wit/workItems/123", 123, true},
		{"trailing slash", "https://dev.azure.com/org/_apis/wit/workItems/123/", 123, true},
		{"query string", "https://dev.azure.com/org/_apis/wit/workItems/123?api-version=7.1", 123, true},
		{"attachment url", "https://dev.azure.com/org/_apis/wit/attachments/a81a-11--4c?fileName=log.txt", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Relation{Rel: RelChild, URL: tt.url}
			id, ok := r.TargetID()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestRelationName(t *testing.T) {
	r := Relation{Rel: RelAttached, Attributes: map[string]any{"name": "log.txt"}}
	assert.Equal(t, "log.txt", r.Name())

	bare := Relation{Rel: RelAttached}
	assert.Equal(t, "", bare.Name())
}

func TestAddRelationPatchShape(t *testing.T) {
	op := AddRelation(RelChild, "https://dev.azure.com/org/_apis/wit/workItems/9", map[string]any{"comment": "c"})

	assert.Equal(t, "add", op.Op)
	assert.Equal(t, "/relations/-", op.Path)
	v, ok := op.Value.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, RelChild, v["rel"])
	assert.Contains(t, v, "attributes")
}
