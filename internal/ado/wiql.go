package ado

import (
	"fmt"
	"strconv"
	"strings"
)

// WIQL builders. Every selection witcopy makes is a flat SELECT [System.Id]
// over one project; these helpers keep the quoting rules in one place.

// quoteWIQL returns s as a WIQL string literal, doubling embedded quotes.
func quoteWIQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// typeList renders a WorkItemType IN (...) list.
func typeList(types []string) string {
	quoted := make([]string, len(types))
	for i, t := range types {
		quoted[i] = quoteWIQL(t)
	}
	return strings.Join(quoted, ",")
}

// ParentsPageQuery selects the next page of candidate root items: the given
// types, ids strictly above afterID, ascending. Passing an exclusion field
// and value appends a <> clause, used to skip items owned by another
// organization. The caller pages by feeding the last id back in.
func ParentsPageQuery(project string, types []string, afterID int, excludeField, excludeValue string) string {
	var b strings.Builder
	b.WriteString("SELECT [System.Id] FROM WorkItems")
	b.WriteString(" WHERE [System.TeamProject] = " + quoteWIQL(project))
	b.WriteString(" AND [System.WorkItemType] IN (" + typeList(types) + ")")
	if excludeField != "" && excludeValue != "" {
		b.WriteString(" AND [" + excludeField + "] <> " + quoteWIQL(excludeValue))
	}
	b.WriteString(" AND [System.Id] > " + strconv.Itoa(afterID))
	b.WriteString(" ORDER BY [System.Id] ASC")
	return b.String()
}

// LastCreatedQuery selects items of the given types newest first. Callers
// truncate the result to the N they want.
func LastCreatedQuery(project string, types []string) string {
	var b strings.Builder
	b.WriteString("SELECT [System.Id] FROM WorkItems")
	b.WriteString(" WHERE [System.TeamProject] = " + quoteWIQL(project))
	b.WriteString(" AND [System.WorkItemType] IN (" + typeList(types) + ")")
	b.WriteString(" ORDER BY [System.CreatedDate] DESC")
	return b.String()
}

// ReflectedQuery finds target items stamped with the given source id.
func ReflectedQuery(project string, sourceID int) string {
	return fmt.Sprintf(
		"SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = %s AND [%s] = %s",
		quoteWIQL(project), ReflectedField, quoteWIQL(strconv.Itoa(sourceID)))
}

// AllReflectedQuery finds every target item carrying a provenance stamp.
func AllReflectedQuery(project string) string {
	return fmt.Sprintf(
		"SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = %s AND [%s] <> '' ORDER BY [System.Id]",
		quoteWIQL(project), ReflectedField)
}

// AllIDsQuery selects every work item in the project, ascending by id.
func AllIDsQuery(project string) string {
	return "SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = " +
		quoteWIQL(project) + " ORDER BY [System.Id]"
}
