package testutil

import "github.com/adotools/witcopy/internal/ado"

// WorkItem builds a source item with the minimal field set tests need.
// Extra fields can be added directly on the returned item.
func WorkItem(id int, typ, title string, rels ...ado.Relation) *ado.WorkItem {
	return &ado.WorkItem{
		ID:  id,
		Rev: 1,
		Fields: map[string]any{
			ado.FieldWorkItemType: typ,
			ado.FieldTitle:        title,
			ado.FieldState:        "New",
		},
		Relations: rels,
		URL:       workItemURL(id),
	}
}

// ChildRel is a Hierarchy-Forward relation pointing at a child item.
func ChildRel(childID int) ado.Relation {
	return ado.Relation{Rel: ado.RelChild, URL: workItemURL(childID)}
}

// ParentRel is a Hierarchy-Reverse relation pointing at the parent item.
func ParentRel(parentID int) ado.Relation {
	return ado.Relation{Rel: ado.RelParent, URL: workItemURL(parentID)}
}

// RelatedRel is a Related relation pointing at another item.
func RelatedRel(id int) ado.Relation {
	return ado.Relation{Rel: ado.RelRelated, URL: workItemURL(id)}
}

// AttachedRel is an AttachedFile relation with the given download URL and
// file name.
func AttachedRel(url, name string) ado.Relation {
	return ado.Relation{
		Rel:        ado.RelAttached,
		URL:        url,
		Attributes: map[string]any{"name": name},
	}
}
