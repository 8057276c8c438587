package ado

import (
	"context"
	"io"
)

// Store is the slice of the work-item service the migration engine
// consumes. *Client implements it against a live organization; tests swap
// in an in-memory fake.
type Store interface {
	// Project returns the project name queries are scoped to.
	Project() string

	GetWorkItem(ctx context.Context, id int, relations bool) (*WorkItem, error)
	GetWorkItemsBatch(ctx context.Context, ids []int, fields []string, relations bool) ([]WorkItem, error)
	QueryIDs(ctx context.Context, wiql string) ([]int, error)

	GetFields(ctx context.Context) ([]Field, error)
	GetWorkItemType(ctx context.Context, typeName string) (*WorkItemType, error)

	CreateWorkItem(ctx context.Context, typeName string, ops []PatchOp) (*WorkItem, error)
	UpdateWorkItem(ctx context.Context, id int, ops []PatchOp) (*WorkItem, error)
	CreateLink(ctx context.Context, fromID, toID int, kind string) error
	AttachFile(ctx context.Context, id int, attachmentURL, name, comment string) error

	GetComments(ctx context.Context, id int) ([]Comment, error)
	AddComment(ctx context.Context, id int, text string) error

	DownloadAttachment(ctx context.Context, url string) (io.ReadCloser, error)
	UploadAttachment(ctx context.Context, fileName string, r io.ReadSeeker) (*AttachmentRef, error)
}

var _ Store = (*Client)(nil)
