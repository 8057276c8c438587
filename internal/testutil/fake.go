// Package testutil provides the in-memory Azure DevOps fake that engine,
// walker, transfer and cli tests drive instead of a live organization.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adotools/witcopy/internal/ado"
)

// FakeOrg is the organization URL fake relation and attachment URLs live
// under.
const FakeOrg = "https://dev.azure.com/fake"

// CreateCall records one CreateWorkItem invocation.
type CreateCall struct {
	Type string
	Ops  []ado.PatchOp
}

// UpdateCall records one UpdateWorkItem invocation.
type UpdateCall struct {
	ID  int
	Ops []ado.PatchOp
}

// LinkCall records one CreateLink invocation.
type LinkCall struct {
	From int
	To   int
	Kind string
}

// AttachCall records one AttachFile invocation.
type AttachCall struct {
	ID      int
	URL     string
	Name    string
	Comment string
}

// FakeStore is an in-memory ado.Store. Creates, updates and links are
// applied to its item table and every mutating call is recorded for
// assertions. Safe for concurrent use.
type FakeStore struct {
	mu sync.Mutex

	project string
	nextID  int

	items       map[int]*ado.WorkItem
	fields      []ado.Field
	types       map[string]ado.WorkItemType
	comments    map[int][]ado.Comment
	attachments map[string][]byte

	// Recorded mutations, in call order.
	Created       []CreateCall
	Updated       []UpdateCall
	Linked        []LinkCall
	Attached      []AttachCall
	AddedComments map[int][]string
	Uploaded      []string

	// Hooks run before the default behavior; a non-nil error is returned
	// to the caller and nothing is applied.
	QueryHook  func(wiql string) ([]int, error)
	CreateHook func(typeName string, ops []ado.PatchOp) error
	UpdateHook func(id int, ops []ado.PatchOp) error
	LinkHook   func(fromID, toID int, kind string) error
}

var _ ado.Store = (*FakeStore)(nil)

// NewFakeStore returns an empty fake for the named project. Created items
// get ids from 9000 up so tests can tell source ids from target ids.
func NewFakeStore(project string) *FakeStore {
	return &FakeStore{
		project:       project,
		nextID:        9000,
		items:         map[int]*ado.WorkItem{},
		types:         map[string]ado.WorkItemType{},
		comments:      map[int][]ado.Comment{},
		attachments:   map[string][]byte{},
		AddedComments: map[int][]string{},
	}
}

// Seed inserts items as given, keyed by their IDs.
func (s *FakeStore) Seed(items ...*ado.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[it.ID] = it
	}
}

// SetFields replaces the organization field list.
func (s *FakeStore) SetFields(fields ...ado.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
}

// SetType registers a work item type.
func (s *FakeStore) SetType(t ado.WorkItemType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[strings.ToLower(t.Name)] = t
}

// SeedComment appends a comment to an item's discussion.
func (s *FakeStore) SeedComment(id int, c ado.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[id] = append(s.comments[id], c)
}

// SeedAttachment registers downloadable content under a URL.
func (s *FakeStore) SeedAttachment(url string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments[url] = content
}

// Item returns a copy of a stored item, or nil.
func (s *FakeStore) Item(id int) *ado.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil
	}
	return copyItem(it, true)
}

// AttachmentContent returns uploaded or seeded bytes for a URL, or nil.
func (s *FakeStore) AttachmentContent(url string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachments[url]
}

func (s *FakeStore) Project() string {
	return s.project
}

func (s *FakeStore) GetWorkItem(_ context.Context, id int, relations bool) (*ado.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, notFound("GET", fmt.Sprintf("workitems/%d", id))
	}
	return copyItem(it, relations), nil
}

func (s *FakeStore) GetWorkItemsBatch(_ context.Context, ids []int, fields []string, relations bool) ([]ado.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Missing ids are omitted, matching errorPolicy=omit.
	out := make([]ado.WorkItem, 0, len(ids))
	for _, id := range ids {
		it, ok := s.items[id]
		if !ok {
			continue
		}
		c := copyItem(it, relations)
		if len(fields) > 0 {
			projected := make(map[string]any, len(fields))
			for _, f := range fields {
				if v, ok := c.Fields[f]; ok {
					projected[f] = v
				}
			}
			c.Fields = projected
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *FakeStore) QueryIDs(_ context.Context, wiql string) ([]int, error) {
	s.mu.Lock()
	hook := s.QueryHook
	s.mu.Unlock()
	if hook != nil {
		return hook(wiql)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *FakeStore) GetFields(_ context.Context) ([]ado.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ado.Field(nil), s.fields...), nil
}

func (s *FakeStore) GetWorkItemType(_ context.Context, typeName string) (*ado.WorkItemType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.types[strings.ToLower(typeName)]
	if !ok {
		return nil, notFound("GET", "workitemtypes/"+typeName)
	}
	return &t, nil
}

func (s *FakeStore) CreateWorkItem(_ context.Context, typeName string, ops []ado.PatchOp) (*ado.WorkItem, error) {
	s.mu.Lock()
	hook := s.CreateHook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(typeName, ops); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++

	item := &ado.WorkItem{
		ID:  id,
		Rev: 1,
		Fields: map[string]any{
			ado.FieldWorkItemType: typeName,
			ado.FieldTeamProject:  s.project,
		},
		URL: workItemURL(id),
	}
	applyOps(item, ops)
	s.items[id] = item
	s.Created = append(s.Created, CreateCall{Type: typeName, Ops: ops})
	return copyItem(item, true), nil
}

func (s *FakeStore) UpdateWorkItem(_ context.Context, id int, ops []ado.PatchOp) (*ado.WorkItem, error) {
	s.mu.Lock()
	hook := s.UpdateHook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(id, ops); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, notFound("PATCH", fmt.Sprintf("workitems/%d", id))
	}
	applyOps(item, ops)
	item.Rev++
	s.Updated = append(s.Updated, UpdateCall{ID: id, Ops: ops})
	return copyItem(item, true), nil
}

func (s *FakeStore) CreateLink(_ context.Context, fromID, toID int, kind string) error {
	s.mu.Lock()
	hook := s.LinkHook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(fromID, toID, kind); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[fromID]
	if !ok {
		return notFound("PATCH", fmt.Sprintf("workitems/%d", fromID))
	}
	target := workItemURL(toID)
	for _, r := range item.Relations {
		if r.Rel == kind && r.URL == target {
			return &ado.RemoteError{
				StatusCode: 400,
				Method:     "PATCH",
				URL:        item.URL,
				Message:    "relation already exists on work item",
			}
		}
	}
	item.Relations = append(item.Relations, ado.Relation{Rel: kind, URL: target})
	s.Linked = append(s.Linked, LinkCall{From: fromID, To: toID, Kind: kind})
	return nil
}

func (s *FakeStore) AttachFile(_ context.Context, id int, attachmentURL, name, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return notFound("PATCH", fmt.Sprintf("workitems/%d", id))
	}
	item.Relations = append(item.Relations, ado.Relation{
		Rel: ado.RelAttached,
		URL: attachmentURL,
		Attributes: map[string]any{
			"name":    name,
			"comment": comment,
		},
	})
	s.Attached = append(s.Attached, AttachCall{ID: id, URL: attachmentURL, Name: name, Comment: comment})
	return nil
}

func (s *FakeStore) GetComments(_ context.Context, id int) ([]ado.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]ado.Comment(nil), s.comments[id]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedDate.Before(out[j].CreatedDate)
	})
	return out, nil
}

func (s *FakeStore) AddComment(_ context.Context, id int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return notFound("POST", fmt.Sprintf("workitems/%d/comments", id))
	}
	s.AddedComments[id] = append(s.AddedComments[id], text)
	s.comments[id] = append(s.comments[id], ado.Comment{
		ID:          len(s.comments[id]) + 1,
		Text:        text,
		CreatedDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(len(s.comments[id])) * time.Minute),
	})
	return nil
}

func (s *FakeStore) DownloadAttachment(_ context.Context, url string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.attachments[url]
	if !ok {
		return nil, notFound("GET", url)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (s *FakeStore) UploadAttachment(_ context.Context, fileName string, r io.ReadSeeker) (*ado.AttachmentRef, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("fake-att-%d", len(s.Uploaded)+1)
	u := fmt.Sprintf("%s/_apis/wit/attachments/%s?fileName=%s", FakeOrg, id, url.QueryEscape(fileName))
	s.attachments[u] = content
	s.Uploaded = append(s.Uploaded, fileName)
	return &ado.AttachmentRef{ID: id, URL: u}, nil
}

func workItemURL(id int) string {
	return fmt.Sprintf("%s/_apis/wit/workItems/%d", FakeOrg, id)
}

func notFound(method, path string) error {
	return &ado.RemoteError{
		StatusCode: 404,
		Method:     method,
		URL:        FakeOrg + "/" + path,
		Message:    "not found",
	}
}

func applyOps(item *ado.WorkItem, ops []ado.PatchOp) {
	for _, op := range ops {
		switch {
		case strings.HasPrefix(op.Path, "/fields/"):
			item.Fields[strings.TrimPrefix(op.Path, "/fields/")] = op.Value
		case op.Path == "/relations/-":
			v, ok := op.Value.(map[string]any)
			if !ok {
				continue
			}
			rel := ado.Relation{}
			rel.Rel, _ = v["rel"].(string)
			rel.URL, _ = v["url"].(string)
			rel.Attributes, _ = v["attributes"].(map[string]any)
			item.Relations = append(item.Relations, rel)
		}
	}
}

func copyItem(it *ado.WorkItem, relations bool) *ado.WorkItem {
	c := &ado.WorkItem{ID: it.ID, Rev: it.Rev, URL: it.URL}
	c.Fields = make(map[string]any, len(it.Fields))
	for k, v := range it.Fields {
		c.Fields[k] = v
	}
	if relations {
		c.Relations = append([]ado.Relation(nil), it.Relations...)
	}
	return c
}
