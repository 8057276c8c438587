// Package ado speaks the Azure DevOps work-item tracking REST API. It
// provides the wire types, a PAT-authenticated HTTP client with retry, and
// the WIQL builders the rest of witcopy drives item selection with.
package ado

import (
	"strconv"
	"strings"
	"time"
)

// API versions pinned for the endpoints we call. The comments endpoint has
// never left preview.
const (
	apiVersion         = "7.1"
	commentsAPIVersion = "7.1-preview.3"
)

// Link relation kinds used when walking and re-creating work-item graphs.
const (
	RelParent   = "System.LinkTypes.Hierarchy-Reverse"
	RelChild    = "System.LinkTypes.Hierarchy-Forward"
	RelRelated  = "System.LinkTypes.Related"
	RelAttached = "AttachedFile"
)

// ReflectedField is the provenance field stamped on every migrated item so
// a later run (or a human) can trace a target item back to its source.
const ReflectedField = "Custom.ReflectedWorkItemId"

// ParseReflectedID parses a ReflectedField value back into a source item
// id. Migrated items carry it as a decimal string; some earlier tooling
// wrote numbers, so both decode.
func ParseReflectedID(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	case float64:
		id := int(t)
		if float64(id) != t || id <= 0 {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// Well-known field reference names.
const (
	FieldID           = "System.Id"
	FieldTitle        = "System.Title"
	FieldWorkItemType = "System.WorkItemType"
	FieldState        = "System.State"
	FieldAreaPath     = "System.AreaPath"
	FieldIteration    = "System.IterationPath"
	FieldAssignedTo   = "System.AssignedTo"
	FieldDescription  = "System.Description"
	FieldHistory      = "System.History"
	FieldTags         = "System.Tags"
	FieldCreatedDate  = "System.CreatedDate"
	FieldTeamProject  = "System.TeamProject"
)

// WorkItem is a work item as returned by the tracking API. Fields holds the
// raw field map keyed by reference name; values are whatever JSON type the
// service sent (string, float64, bool, or an identity object).
type WorkItem struct {
	ID        int            `json:"id"`
	Rev       int            `json:"rev"`
	Fields    map[string]any `json:"fields"`
	Relations []Relation     `json:"relations,omitempty"`
	URL       string         `json:"url,omitempty"`
}

// Type returns the System.WorkItemType field, or "" when absent.
func (w *WorkItem) Type() string {
	s, _ := w.Fields[FieldWorkItemType].(string)
	return s
}

// Title returns the System.Title field, or "" when absent.
func (w *WorkItem) Title() string {
	s, _ := w.Fields[FieldTitle].(string)
	return s
}

// Relation is one entry of a work item's relations array. For link
// relations URL points at the other work item; for AttachedFile it is the
// attachment download URL and Attributes carries the file name.
type Relation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Name returns the relation's "name" attribute, used by AttachedFile
// relations for the original file name.
func (r *Relation) Name() string {
	s, _ := r.Attributes["name"].(string)
	return s
}

// TargetID extracts the work item id a link relation points at. Link URLs
// end in the numeric id; attachment URLs do not, and report false.
func (r *Relation) TargetID() (int, bool) {
	u := r.URL
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimSuffix(u, "/")
	i := strings.LastIndexByte(u, '/')
	if i < 0 {
		return 0, false
	}
	id, err := strconv.Atoi(u[i+1:])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// WiqlRequest is the body of a POST to the wiql endpoint.
type WiqlRequest struct {
	Query string `json:"query"`
}

// WorkItemRef is the id/url pair WIQL results are made of.
type WorkItemRef struct {
	ID  int    `json:"id"`
	URL string `json:"url,omitempty"`
}

// WiqlResponse is the result of a flat WIQL query. Link queries populate
// WorkItemRelations instead; witcopy only issues flat queries.
type WiqlResponse struct {
	QueryType string        `json:"queryType,omitempty"`
	AsOf      time.Time     `json:"asOf,omitempty"`
	WorkItems []WorkItemRef `json:"workItems"`
}

// BatchRequest is the body of a POST to workitemsbatch. The service caps
// IDs at 200 per call and rejects requests that set both Fields and Expand.
type BatchRequest struct {
	IDs          []int    `json:"ids"`
	Fields       []string `json:"fields,omitempty"`
	Expand       string   `json:"$expand,omitempty"`
	ErrorPolicy  string   `json:"errorPolicy,omitempty"`
	AsOf         string   `json:"asOf,omitempty"`
	ProjectLevel bool     `json:"-"`
}

// BatchResponse wraps the items returned by workitemsbatch.
type BatchResponse struct {
	Count int        `json:"count"`
	Value []WorkItem `json:"value"`
}

// Field describes one work-item field definition in the organization.
type Field struct {
	Name          string `json:"name"`
	ReferenceName string `json:"referenceName"`
	Type          string `json:"type,omitempty"`
	Usage         string `json:"usage,omitempty"`
	ReadOnly      bool   `json:"readOnly,omitempty"`
	CanSortBy     bool   `json:"canSortBy,omitempty"`
	IsPicklist    bool   `json:"isPicklist,omitempty"`
	URL           string `json:"url,omitempty"`
}

// FieldsResponse wraps the organization field list.
type FieldsResponse struct {
	Count int     `json:"count"`
	Value []Field `json:"value"`
}

// TypeFieldRef is a field as attached to a work-item type, carrying the
// per-type required flag the org-wide Field definition lacks.
type TypeFieldRef struct {
	ReferenceName  string `json:"referenceName"`
	Name           string `json:"name"`
	AlwaysRequired bool   `json:"alwaysRequired,omitempty"`
	DefaultValue   any    `json:"defaultValue,omitempty"`
}

// WorkItemType describes a work-item type in a project, including the
// fields valid for it.
type WorkItemType struct {
	Name          string         `json:"name"`
	ReferenceName string         `json:"referenceName,omitempty"`
	Description   string         `json:"description,omitempty"`
	IsDisabled    bool           `json:"isDisabled,omitempty"`
	Fields        []TypeFieldRef `json:"fields,omitempty"`
	States        []TypeState    `json:"states,omitempty"`
}

// TypeState is one state of a work-item type.
type TypeState struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Color    string `json:"color,omitempty"`
}

// IdentityRef is the identity object ADO embeds in identity-valued fields
// and comment authorship. Which of the name fields is populated varies by
// backing directory, so consumers should try them in order.
type IdentityRef struct {
	ID            string `json:"id,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	UniqueName    string `json:"uniqueName,omitempty"`
	PrincipalName string `json:"principalName,omitempty"`
	Mail          string `json:"mail,omitempty"`
	Descriptor    string `json:"descriptor,omitempty"`
}

// Comment is one discussion comment on a work item.
type Comment struct {
	ID          int         `json:"id"`
	WorkItemID  int         `json:"workItemId,omitempty"`
	Text        string      `json:"text"`
	CreatedBy   IdentityRef `json:"createdBy,omitempty"`
	CreatedDate time.Time   `json:"createdDate,omitempty"`
}

// CommentsResponse wraps a page of work-item comments.
type CommentsResponse struct {
	TotalCount        int       `json:"totalCount"`
	Count             int       `json:"count"`
	Comments          []Comment `json:"comments"`
	ContinuationToken string    `json:"continuationToken,omitempty"`
}

// Revision is one historical revision of a work item. Only the fields that
// changed readers care about are modeled; the rest stays in Fields.
type Revision struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev"`
	Fields map[string]any `json:"fields"`
}

// RevisionsResponse wraps a work item's revision history.
type RevisionsResponse struct {
	Count int        `json:"count"`
	Value []Revision `json:"value"`
}

// AttachmentRef is the service's receipt for an uploaded attachment. The
// URL is what a subsequent AttachedFile relation must point at.
type AttachmentRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PatchOp is one JSON-Patch operation. Work-item create and update both
// take arrays of these with content type application/json-patch+json.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

// AddField builds the common "add a field value" patch op.
func AddField(refName string, value any) PatchOp {
	return PatchOp{Op: "add", Path: "/fields/" + refName, Value: value}
}

// AddRelation builds the patch op that appends one relation.
func AddRelation(rel, url string, attrs map[string]any) PatchOp {
	v := map[string]any{"rel": rel, "url": url}
	if len(attrs) > 0 {
		v["attributes"] = attrs
	}
	return PatchOp{Op: "add", Path: "/relations/-", Value: v}
}
