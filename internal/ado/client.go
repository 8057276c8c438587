package ado

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

const (
	defaultTimeout = 30 * time.Second
	retryDelay     = 2 * time.Second
	retryMaxDelay  = 30 * time.Second
	retryAttempts  = 5
	batchChunkSize = 200
	contentJSON    = "application/json"
	contentPatch   = "application/json-patch+json"
	contentOctets  = "application/octet-stream"
)

// ClientConfig carries what NewClient needs to reach one organization and
// project. OrgURL is the organization root, e.g.
// https://dev.azure.com/fabrikam, with or without a trailing slash.
type ClientConfig struct {
	OrgURL  string
	Project string
	PAT     string

	// HTTPClient, Clock and Logger default to a 30s-timeout client, the
	// wall clock and slog.Default.
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Client talks to one Azure DevOps organization with PAT basic auth. All
// calls retry transient failures with doubling backoff, honoring Retry-After
// when the service sends one. Client is safe for concurrent use.
type Client struct {
	org     string
	project string
	pat     string
	http    *http.Client
	clock   clock.Clock
	logger  *slog.Logger
}

// NewClient builds a Client from cfg, filling in defaults.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		org:     strings.TrimRight(cfg.OrgURL, "/"),
		project: cfg.Project,
		pat:     cfg.PAT,
		http:    cfg.HTTPClient,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Project returns the project this client is scoped to.
func (c *Client) Project() string { return c.project }

// projectURL builds a project-scoped _apis/wit URL.
func (c *Client) projectURL(path string, params url.Values) string {
	return c.apiURL(c.org+"/"+url.PathEscape(c.project)+"/_apis/wit/"+path, params)
}

// orgURL builds an organization-scoped _apis/wit URL.
func (c *Client) orgURL(path string, params url.Values) string {
	return c.apiURL(c.org+"/_apis/wit/"+path, params)
}

func (c *Client) apiURL(base string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if params.Get("api-version") == "" {
		params.Set("api-version", apiVersion)
	}
	return base + "?" + params.Encode()
}

// GetWorkItem fetches one work item. With relations=true the item's link
// and attachment relations are included.
func (c *Client) GetWorkItem(ctx context.Context, id int, relations bool) (*WorkItem, error) {
	params := url.Values{}
	if relations {
		params.Set("$expand", "relations")
	}
	u := c.projectURL("workitems/"+strconv.Itoa(id), params)
	var wi WorkItem
	if err := c.getJSON(ctx, u, &wi); err != nil {
		return nil, err
	}
	return &wi, nil
}

// GetWorkItemsBatch fetches many work items, chunking requests to the
// service's 200-id limit. Exactly one of fields and relations may be set;
// the batch endpoint rejects requests carrying both.
func (c *Client) GetWorkItemsBatch(ctx context.Context, ids []int, fields []string, relations bool) ([]WorkItem, error) {
	if len(fields) > 0 && relations {
		return nil, fmt.Errorf("workitemsbatch: fields and $expand=relations are mutually exclusive")
	}
	out := make([]WorkItem, 0, len(ids))
	for start := 0; start < len(ids); start += batchChunkSize {
		end := min(start+batchChunkSize, len(ids))
		req := BatchRequest{IDs: ids[start:end], Fields: fields, ErrorPolicy: "omit"}
		if relations {
			req.Expand = "relations"
		}
		u := c.projectURL("workitemsbatch", nil)
		var resp BatchResponse
		if err := c.postJSON(ctx, u, req, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Value...)
	}
	return out, nil
}

// QueryIDs runs a flat WIQL query and returns the matching ids in the
// order the service ranked them.
func (c *Client) QueryIDs(ctx context.Context, wiql string) ([]int, error) {
	u := c.projectURL("wiql", nil)
	var resp WiqlResponse
	if err := c.postJSON(ctx, u, WiqlRequest{Query: wiql}, &resp); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(resp.WorkItems))
	for _, ref := range resp.WorkItems {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

// GetFields lists every work-item field defined in the organization.
func (c *Client) GetFields(ctx context.Context) ([]Field, error) {
	u := c.orgURL("fields", nil)
	var resp FieldsResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetWorkItemType fetches one work-item type of the project, including its
// field list with required flags.
func (c *Client) GetWorkItemType(ctx context.Context, typeName string) (*WorkItemType, error) {
	u := c.projectURL("workitemtypes/"+url.PathEscape(typeName), nil)
	var wt WorkItemType
	if err := c.getJSON(ctx, u, &wt); err != nil {
		return nil, err
	}
	return &wt, nil
}

// CreateWorkItem creates a work item of the given type from a JSON-Patch
// document and returns the created item.
func (c *Client) CreateWorkItem(ctx context.Context, typeName string, ops []PatchOp) (*WorkItem, error) {
	u := c.projectURL("workitems/$"+url.PathEscape(typeName), nil)
	var wi WorkItem
	if err := c.patchJSON(ctx, u, ops, &wi); err != nil {
		return nil, err
	}
	return &wi, nil
}

// UpdateWorkItem applies a JSON-Patch document to an existing work item.
func (c *Client) UpdateWorkItem(ctx context.Context, id int, ops []PatchOp) (*WorkItem, error) {
	u := c.projectURL("workitems/"+strconv.Itoa(id), nil)
	var wi WorkItem
	if err := c.patchJSON(ctx, u, ops, &wi); err != nil {
		return nil, err
	}
	return &wi, nil
}

// WorkItemURL returns the canonical resource URL for a work item in this
// organization, the form relation patches must reference.
func (c *Client) WorkItemURL(id int) string {
	return c.org + "/_apis/wit/workItems/" + strconv.Itoa(id)
}

// CreateLink adds a relation of the given kind from one work item to
// another in the same organization.
func (c *Client) CreateLink(ctx context.Context, fromID, toID int, kind string) error {
	_, err := c.UpdateWorkItem(ctx, fromID, []PatchOp{
		AddRelation(kind, c.WorkItemURL(toID), nil),
	})
	return err
}

// AttachFile adds an AttachedFile relation pointing at an uploaded
// attachment URL, with the original file name and an optional comment.
func (c *Client) AttachFile(ctx context.Context, id int, attachmentURL, name, comment string) error {
	attrs := map[string]any{"name": name}
	if comment != "" {
		attrs["comment"] = comment
	}
	_, err := c.UpdateWorkItem(ctx, id, []PatchOp{
		AddRelation(RelAttached, attachmentURL, attrs),
	})
	return err
}

// GetComments returns the discussion comments of a work item, oldest
// first. Servers that predate the comments endpoint get the revision
// history fallback: every revision whose System.History changed counts as
// one comment.
func (c *Client) GetComments(ctx context.Context, id int) ([]Comment, error) {
	params := url.Values{}
	params.Set("api-version", commentsAPIVersion)
	params.Set("order", "asc")
	u := c.projectURL("workItems/"+strconv.Itoa(id)+"/comments", params)
	var resp CommentsResponse
	err := c.getJSON(ctx, u, &resp)
	if err == nil {
		return resp.Comments, nil
	}
	if !IsNotFound(err) && !isBadAPIVersion(err) {
		return nil, err
	}
	return c.commentsFromRevisions(ctx, id)
}

func (c *Client) commentsFromRevisions(ctx context.Context, id int) ([]Comment, error) {
	u := c.projectURL("workItems/"+strconv.Itoa(id)+"/revisions", nil)
	var resp RevisionsResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	var out []Comment
	for _, rev := range resp.Value {
		text, _ := rev.Fields[FieldHistory].(string)
		if text == "" {
			continue
		}
		cm := Comment{ID: rev.Rev, WorkItemID: id, Text: text}
		if by, ok := rev.Fields["System.ChangedBy"].(map[string]any); ok {
			cm.CreatedBy.DisplayName, _ = by["displayName"].(string)
			cm.CreatedBy.UniqueName, _ = by["uniqueName"].(string)
		}
		if ts, ok := rev.Fields["System.ChangedDate"].(string); ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				cm.CreatedDate = t
			}
		}
		out = append(out, cm)
	}
	return out, nil
}

// AddComment appends a discussion comment by pushing System.History, which
// works on every server version the comments endpoint does not.
func (c *Client) AddComment(ctx context.Context, id int, text string) error {
	_, err := c.UpdateWorkItem(ctx, id, []PatchOp{AddField(FieldHistory, text)})
	return err
}

// DownloadAttachment opens the attachment at the given absolute URL for
// reading. The caller owns closing the stream. Failures after the stream
// is open are the caller's to handle, typically by calling again.
func (c *Client) DownloadAttachment(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := c.withRetry(ctx, "download attachment", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return &TransportError{Op: "GET", URL: rawURL, Err: err}
		}
		req.SetBasicAuth("", c.pat)
		resp, err := c.http.Do(req)
		if err != nil {
			return &TransportError{Op: "GET", URL: rawURL, Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer resp.Body.Close()
			return c.remoteError(http.MethodGet, rawURL, resp)
		}
		rc = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// UploadAttachment streams r to the attachment store under fileName and
// returns the ref whose URL an AttachedFile relation must point at. The
// reader is rewound before each retry attempt.
func (c *Client) UploadAttachment(ctx context.Context, fileName string, r io.ReadSeeker) (*AttachmentRef, error) {
	params := url.Values{}
	params.Set("fileName", fileName)
	u := c.projectURL("attachments", params)
	var ref AttachmentRef
	err := c.withRetry(ctx, "upload attachment", func() error {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind attachment %q: %w", fileName, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, r)
		if err != nil {
			return &TransportError{Op: "POST", URL: u, Err: err}
		}
		req.SetBasicAuth("", c.pat)
		req.Header.Set("Content-Type", contentOctets)
		resp, err := c.http.Do(req)
		if err != nil {
			return &TransportError{Op: "POST", URL: u, Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return c.remoteError(http.MethodPost, u, resp)
		}
		return json.NewDecoder(resp.Body).Decode(&ref)
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	return c.withRetry(ctx, "GET "+u, func() error {
		return c.do(ctx, http.MethodGet, u, "", nil, out)
	})
}

func (c *Client) postJSON(ctx context.Context, u string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.withRetry(ctx, "POST "+u, func() error {
		return c.do(ctx, http.MethodPost, u, contentJSON, payload, out)
	})
}

func (c *Client) patchJSON(ctx context.Context, u string, ops []PatchOp, out any) error {
	payload, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	return c.withRetry(ctx, "PATCH "+u, func() error {
		return c.do(ctx, http.MethodPatch, u, contentPatch, payload, out)
	})
}

// do performs one HTTP exchange and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, u, contentType string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return &TransportError{Op: method, URL: u, Err: err}
	}
	req.SetBasicAuth("", c.pat)
	req.Header.Set("Accept", contentJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: u, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.remoteError(method, u, resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: method, URL: u, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// remoteError turns a non-2xx response into a RemoteError, pulling the
// message out of the ADO error body when it is JSON.
func (c *Client) remoteError(method, u string, resp *http.Response) error {
	re := &RemoteError{
		StatusCode: resp.StatusCode,
		Method:     method,
		URL:        u,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now()),
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	var ec struct {
		Message string `json:"message"`
		TypeKey string `json:"typeKey"`
	}
	if json.Unmarshal(body, &ec) == nil && ec.Message != "" {
		re.Message = ec.Message
		re.TypeKey = ec.TypeKey
	} else if resp.StatusCode == 203 {
		re.Message = "non-JSON response from service; the PAT is likely invalid or expired"
	}
	return re
}

// withRetry runs f under the standard retry policy: doubling backoff from
// 2s capped at 30s, five attempts, Retry-After respected as a floor.
func (c *Client) withRetry(ctx context.Context, what string, f func() error) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = f()
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !Retryable(err) || ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			if attempt > 1 {
				c.logger.Warn("retrying", "op", what, "attempt", attempt, "error", err)
			}
		},
		Attempts: retryAttempts,
		Delay:    retryDelay,
		MaxDelay: retryMaxDelay,
		BackoffFunc: func(delay time.Duration, attempt int) time.Duration {
			next := retry.DoubleDelay(delay, attempt)
			if ra := retryAfter(lastErr); ra > next {
				next = ra
			}
			if next > retryMaxDelay {
				next = retryMaxDelay
			}
			return next
		},
		Clock: c.clock,
		Stop:  ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		return retry.LastError(err)
	}
	return err
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(h string, now time.Time) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// isBadAPIVersion matches the service refusing the preview comments API
// version, which older on-prem servers answer with a 400.
func isBadAPIVersion(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode == 400 && strings.Contains(re.Message, "api-version")
}
