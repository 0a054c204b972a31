package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"stmtsep/internal/config"
	"stmtsep/internal/logging"
	"stmtsep/internal/types"
)

var (
	_ DocumentSink   = (*Paperless)(nil)
	_ DocumentSource = (*Paperless)(nil)
)

// Paperless is the paperless-ngx client. All name-based metadata (tags,
// correspondent, document type, storage path) is resolved to remote IDs on
// use, creating missing entries where the API allows it.
type Paperless struct {
	baseURL    string
	token      string
	cfg        config.SinkConfig
	httpClient *http.Client
	log        *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error // injectable for tests
}

// NewPaperless builds a client from the sink configuration.
func NewPaperless(cfg config.SinkConfig) *Paperless {
	timeout := time.Duration(cfg.QueryTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Paperless{
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		token:      cfg.Token,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.For("sink"),
		sleep:      sleepCtx,
	}
}

// TestConnection performs a minimal authenticated query.
func (p *Paperless) TestConnection(ctx context.Context) error {
	var out struct {
		Count int `json:"count"`
	}
	if err := p.getJSON(ctx, "/api/documents/", url.Values{"page_size": {"1"}}, &out); err != nil {
		return fmt.Errorf("paperless connection test failed: %w", err)
	}
	return nil
}

// Upload posts a PDF via the post_document endpoint. Paperless returns a
// task UUID; the document ID becomes available once the task completes.
func (p *Paperless) Upload(ctx context.Context, filePath, title string) (*UploadResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload file: %w", err)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	tagIDs, err := p.resolveTags(ctx, p.cfg.Tags)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("title", title)
	for _, id := range tagIDs {
		w.WriteField("tags", strconv.Itoa(id))
	}
	if p.cfg.Correspondent != "" {
		id, err := p.resolveNamed(ctx, "correspondents", p.cfg.Correspondent, true)
		if err != nil {
			return nil, err
		}
		w.WriteField("correspondent", strconv.Itoa(id))
	}
	if p.cfg.DocumentType != "" {
		id, err := p.resolveNamed(ctx, "document_types", p.cfg.DocumentType, true)
		if err != nil {
			return nil, err
		}
		w.WriteField("document_type", strconv.Itoa(id))
	}
	if p.cfg.StoragePath != "" {
		id, err := p.resolveNamed(ctx, "storage_paths", p.cfg.StoragePath, false)
		if err != nil {
			return nil, err
		}
		w.WriteField("storage_path", strconv.Itoa(id))
	}

	part, err := w.CreateFormFile("document", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	part.Write(data)
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/documents/post_document/", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Token "+p.token)

	raw, err := p.do(req)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{Title: title}
	// post_document returns either a bare task UUID string or a document
	// object, depending on the paperless version.
	var taskID string
	if err := json.Unmarshal(raw, &taskID); err == nil {
		result.TaskID = taskID
	} else {
		var doc struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil || doc.ID == 0 {
			return nil, fmt.Errorf("unexpected upload response: %s", truncate(string(raw), 200))
		}
		result.DocumentID = doc.ID
	}

	p.log.Info("document uploaded",
		zap.String("title", title),
		zap.String("task_id", result.TaskID),
		zap.Int("document_id", result.DocumentID))
	return result, nil
}

// WaitForTask polls the tasks endpoint until the upload task succeeds and
// returns the resulting document ID. Polling honors the client timeout per
// request and ctx overall.
func (p *Paperless) WaitForTask(ctx context.Context, taskID string) (int, error) {
	for {
		var tasks []struct {
			Status          string `json:"status"`
			RelatedDocument string `json:"related_document"`
			Result          string `json:"result"`
		}
		if err := p.getJSON(ctx, "/api/tasks/", url.Values{"task_id": {taskID}}, &tasks); err != nil {
			return 0, err
		}
		if len(tasks) > 0 {
			switch tasks[0].Status {
			case "SUCCESS":
				id, err := strconv.Atoi(tasks[0].RelatedDocument)
				if err != nil {
					return 0, fmt.Errorf("task %s succeeded without a document id", taskID)
				}
				return id, nil
			case "FAILURE":
				return 0, fmt.Errorf("upload task %s failed: %s", taskID, tasks[0].Result)
			}
		}
		if err := p.sleep(ctx, time.Second); err != nil {
			return 0, err
		}
	}
}

// ApplyTags adds the named tags to an existing document. Paperless indexes
// uploads asynchronously, so the configured wait runs first.
func (p *Paperless) ApplyTags(ctx context.Context, documentID int, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	if wait := time.Duration(p.cfg.TagWaitSeconds) * time.Second; wait > 0 {
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}

	tagIDs, err := p.resolveTags(ctx, tags)
	if err != nil {
		return err
	}

	var doc struct {
		Tags []int `json:"tags"`
	}
	if err := p.getJSON(ctx, fmt.Sprintf("/api/documents/%d/", documentID), nil, &doc); err != nil {
		return err
	}

	merged := doc.Tags
	for _, id := range tagIDs {
		if !containsInt(merged, id) {
			merged = append(merged, id)
		}
	}

	payload, _ := json.Marshal(map[string]any{"tags": merged})
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/api/documents/%d/", p.baseURL, documentID), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build tag request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+p.token)

	if _, err := p.do(req); err != nil {
		return err
	}
	p.log.Debug("tags applied", zap.Int("document_id", documentID), zap.Strings("tags", tags))
	return nil
}

// TagFailure applies the configured error tags to a source document when the
// failure severity is in error_severity_levels, or, with no level list
// configured, meets error_min_severity.
func (p *Paperless) TagFailure(ctx context.Context, documentID int, severity types.Severity) error {
	if len(p.cfg.ErrorTags) == 0 {
		return nil
	}
	if !SeverityTaggable(severity, p.cfg.ErrorSeverityLevels, types.Severity(p.cfg.ErrorMinSeverity)) {
		p.log.Debug("failure below error-tag threshold",
			zap.Int("document_id", documentID),
			zap.String("severity", string(severity)))
		return nil
	}
	return p.ApplyTags(ctx, documentID, p.cfg.ErrorTags)
}

// Query lists matching documents, dropping anything that is not a PDF.
func (p *Paperless) Query(ctx context.Context, opts QueryOptions) ([]DocRef, error) {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("page_size", strconv.Itoa(opts.Limit))
	}
	if len(opts.Tags) > 0 {
		ids, err := p.resolveTags(ctx, opts.Tags)
		if err != nil {
			return nil, err
		}
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = strconv.Itoa(id)
		}
		params.Set("tags__id__in", strings.Join(strs, ","))
	}
	if opts.Correspondent != "" {
		id, err := p.resolveNamed(ctx, "correspondents", opts.Correspondent, false)
		if err != nil {
			return nil, err
		}
		params.Set("correspondent", strconv.Itoa(id))
	}
	if opts.DocumentType != "" {
		id, err := p.resolveNamed(ctx, "document_types", opts.DocumentType, false)
		if err != nil {
			return nil, err
		}
		params.Set("document_type", strconv.Itoa(id))
	}

	var out struct {
		Results []struct {
			ID          int    `json:"id"`
			Title       string `json:"title"`
			ContentType string `json:"content_type"`
			MimeType    string `json:"mime_type"`
			Created     string `json:"created"`
		} `json:"results"`
	}
	if err := p.getJSON(ctx, "/api/documents/", params, &out); err != nil {
		return nil, err
	}

	refs := make([]DocRef, 0, len(out.Results))
	for _, r := range out.Results {
		ct := strings.ToLower(r.ContentType)
		if ct == "" {
			ct = strings.ToLower(r.MimeType)
		}
		if !strings.HasPrefix(ct, "application/pdf") {
			p.log.Debug("skipping non-pdf document",
				zap.Int("id", r.ID), zap.String("content_type", ct))
			continue
		}
		refs = append(refs, DocRef{ID: r.ID, Title: r.Title, ContentType: ct, Created: r.Created})
	}
	return refs, nil
}

// Download fetches a document into destDir. Responses without an
// application/pdf content type are rejected.
func (p *Paperless) Download(ctx context.Context, ref DocRef, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/documents/%d/download/", p.baseURL, ref.ID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", types.Transient(types.KindSinkServerError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", types.Transient(types.KindSinkServerError,
			fmt.Errorf("download of document %d returned %d", ref.ID, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download of document %d returned %d", ref.ID, resp.StatusCode)
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "application/pdf") {
		return "", fmt.Errorf("document %d is not a PDF (content-type: %s)", ref.ID, ct)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	name := fmt.Sprintf("paperless-%d.pdf", ref.ID)
	dest := filepath.Join(destDir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to write download: %w", err)
	}
	return dest, nil
}

// resolveTags maps tag names to IDs, creating missing tags.
func (p *Paperless) resolveTags(ctx context.Context, names []string) ([]int, error) {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		id, err := p.resolveNamed(ctx, "tags", name, true)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// resolveNamed finds a named resource via case-insensitive lookup,
// optionally creating it when absent.
func (p *Paperless) resolveNamed(ctx context.Context, resource, name string, create bool) (int, error) {
	var out struct {
		Results []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"results"`
	}
	path := "/api/" + resource + "/"
	if err := p.getJSON(ctx, path, url.Values{"name__iexact": {name}}, &out); err != nil {
		return 0, err
	}
	if len(out.Results) > 0 {
		return out.Results[0].ID, nil
	}
	if !create {
		return 0, fmt.Errorf("%s %q not found", strings.TrimSuffix(resource, "s"), name)
	}

	payload, _ := json.Marshal(map[string]string{"name": name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+p.token)

	raw, err := p.do(req)
	if err != nil {
		return 0, err
	}
	var created struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == 0 {
		return 0, fmt.Errorf("unexpected create response for %s %q: %s", resource, name, truncate(string(raw), 200))
	}
	p.log.Info("created sink resource", zap.String("resource", resource), zap.String("name", name))
	return created.ID, nil
}

func (p *Paperless) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := p.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.token)

	raw, err := p.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid response from %s: %w", path, err)
	}
	return nil
}

// do executes a request and maps failures onto the error taxonomy: network
// errors and 5xx are transient, other non-2xx statuses are terminal.
func (p *Paperless) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, types.Transient(types.KindSinkServerError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, types.Transient(types.KindSinkServerError, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode >= 500 {
		return nil, types.Transient(types.KindSinkServerError,
			fmt.Errorf("paperless returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, types.Transient(types.KindRateLimited, fmt.Errorf("paperless returned 429"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paperless returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
