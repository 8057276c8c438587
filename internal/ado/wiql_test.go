package ado

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParentsPageQuery(t *testing.T) {
	q := ParentsPageQuery("Demo", []string{"Epic", "Feature"}, 0, "", "")
	assert.Equal(t,
		"SELECT [System.Id] FROM WorkItems"+
			" WHERE [System.TeamProject] = 'Demo'"+
			" AND [System.WorkItemType] IN ('Epic','Feature')"+
			" AND [System.Id] > 0"+
			" ORDER BY [System.Id] ASC", q)
}

func TestParentsPageQueryWithExclusion(t *testing.T) {
	q := ParentsPageQuery("Demo", []string{"Epic"}, 1500, "Custom.OwnerOrg", "Contoso")
	assert.Contains(t, q, "AND [Custom.OwnerOrg] <> 'Contoso'")
	assert.Contains(t, q, "AND [System.Id] > 1500")
}

func TestLastCreatedQuery(t *testing.T) {
	q := LastCreatedQuery("Demo", []string{"Work Bundle", "Workbundle"})
	assert.Equal(t,
		"SELECT [System.Id] FROM WorkItems"+
			" WHERE [System.TeamProject] = 'Demo'"+
			" AND [System.WorkItemType] IN ('Work Bundle','Workbundle')"+
			" ORDER BY [System.CreatedDate] DESC", q)
}

func TestReflectedQuery(t *testing.T) {
	q := ReflectedQuery("Demo", 42)
	assert.Equal(t,
		"SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = 'Demo'"+
			" AND [Custom.ReflectedWorkItemId] = '42'", q)
}

func TestQuotingDoublesEmbeddedQuotes(t *testing.T) {
	q := LastCreatedQuery("O'Brien Project", []string{"Bug"})
	assert.Contains(t, q, "'O''Brien Project'")
}
