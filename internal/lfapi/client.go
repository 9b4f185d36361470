package lfapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrMissingData signals a response without the expected "data"
	// envelope. The shape is fatal for the call; never defaulted over.
	ErrMissingData = errors.New("lfapi: response missing data envelope")
)

// ListingFailedError is the server-side listing refusal, e.g. the
// "Mismatched entry type; the actual type is Shortcut" response.
type ListingFailedError struct {
	FolderID int64
	ErrMsg   string
}

func (e *ListingFailedError) Error() string {
	return fmt.Sprintf("lfapi: listing folder %d failed: %s", e.FolderID, e.ErrMsg)
}

// Doer is satisfied by transport.Client; tests substitute fakes.
type Doer interface {
	Do(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error)
}

// Client issues typed calls against the repository's WebLink endpoints.
type Client struct {
	t        Doer
	baseURL  string
	repoName string
	vdirName string
}

// New builds a client. baseURL is the virtual directory root, e.g.
// https://host/CSODOCS (no trailing slash needed).
func New(t Doer, baseURL, repoName, vdirName string) *Client {
	return &Client{t: t, baseURL: strings.TrimRight(baseURL, "/"), repoName: repoName, vdirName: vdirName}
}

// DocumentURL returns the public viewer URL for an entry.
func (c *Client) DocumentURL(entryID int64) string {
	return fmt.Sprintf("%s/DocView.aspx?id=%d&dbid=0&repo=%s", c.baseURL, entryID, c.repoName)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	resp, err := c.t.Do(ctx, http.MethodPost, c.baseURL+path, header, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lfapi: %s returned status %d", path, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return b, nil
}

// unwrapData pulls the "data" value out of the vendor envelope.
func unwrapData(b []byte) (json.RawMessage, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, ErrMissingData
	}
	return env.Data, nil
}

// ListFolder fetches one page window of a folder listing. start/end are
// the server's window indices; callers advance the window while entries
// remain. The window order is server-maintained, so page N+1 must only
// be requested after page N is incorporated.
func (c *Client) ListFolder(ctx context.Context, folderID int64, start, end int) (*ListingPage, error) {
	payload := map[string]any{
		"end":           end,
		"folderId":      folderID,
		"getNewListing": true,
		"repoName":      c.repoName,
		"sortAscending": true,
		"sortColumn":    "",
		"start":         start,
	}
	b, err := c.postJSON(ctx, "/FolderListingService.aspx/GetFolderListing2", payload)
	if err != nil {
		return nil, err
	}
	data, err := unwrapData(b)
	if err != nil {
		return nil, fmt.Errorf("list folder %d: %w", folderID, err)
	}
	var page ListingPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("list folder %d: decode page: %w", folderID, err)
	}
	if page.Failed {
		return nil, &ListingFailedError{FolderID: folderID, ErrMsg: page.ErrMsg}
	}
	return &page, nil
}

// GetDocumentMetadata fetches the template metadata for an entry.
func (c *Client) GetDocumentMetadata(ctx context.Context, entryID int64) (*DocumentMetadata, error) {
	payload := map[string]any{
		"entryId":  entryID,
		"repoName": c.repoName,
	}
	b, err := c.postJSON(ctx, "/DocumentService.aspx/GetBasicDocumentInfo", payload)
	if err != nil {
		return nil, err
	}
	data, err := unwrapData(b)
	if err != nil {
		return nil, fmt.Errorf("metadata for %d: %w", entryID, err)
	}
	var md DocumentMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("metadata for %d: decode: %w", entryID, err)
	}
	if md.Metadata.Err != nil && *md.Metadata.Err != "" {
		return nil, fmt.Errorf("metadata for %d: server error: %s", entryID, *md.Metadata.Err)
	}
	return &md, nil
}

// RequestBulkExport starts a server-side export job for the given
// entries and returns the job token to poll with.
func (c *Client) RequestBulkExport(ctx context.Context, entryIDs []int64) (string, error) {
	payload := map[string]any{
		"ids":          entryIDs,
		"key":          -1,
		"repoName":     c.repoName,
		"vdirName":     c.vdirName,
		"watermarkIdx": -1,
	}
	b, err := c.postJSON(ctx, "/ZipEntriesHandler.aspx/StartExport", payload)
	if err != nil {
		return "", err
	}
	data, err := unwrapData(b)
	if err != nil {
		return "", fmt.Errorf("bulk export request: %w", err)
	}
	var status ExportStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return "", fmt.Errorf("bulk export request: decode: %w", err)
	}
	if status.Token == "" {
		return "", fmt.Errorf("bulk export request: no token in response")
	}
	return status.Token, nil
}

// RequestSingleExport starts a single-document PDF generation covering
// the given page range. The key to poll with is the first line of the
// otherwise decorative HTML response body.
func (c *Client) RequestSingleExport(ctx context.Context, entryID int64, startPage, endPage int) (string, error) {
	url := fmt.Sprintf("%s/GeneratePDF10.aspx?key=%d&PageRange=%d-%d&Watermark=0&repo=%s",
		c.baseURL, entryID, startPage, endPage, c.repoName)
	header := http.Header{
		"Referer": []string{c.DocumentURL(entryID)},
	}
	resp, err := c.t.Do(ctx, http.MethodPost, url, header, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lfapi: single export returned status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read single export response: %w", err)
	}
	key, _, _ := strings.Cut(string(b), "\n")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("single export for %d: empty key in response", entryID)
	}
	return key, nil
}

// PollExportStatus checks a bulk export job.
func (c *Client) PollExportStatus(ctx context.Context, token string) (*ExportStatus, error) {
	b, err := c.postJSON(ctx, "/ZipEntriesHandler.aspx/CheckExportStatus", map[string]any{"token": token})
	if err != nil {
		return nil, err
	}
	data, err := unwrapData(b)
	if err != nil {
		return nil, fmt.Errorf("poll export %s: %w", token, err)
	}
	var status ExportStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("poll export %s: decode: %w", token, err)
	}
	return &status, nil
}

// PollSingleExport checks a single-document PDF generation job.
// Unlike the bulk endpoint this one has no data envelope.
func (c *Client) PollSingleExport(ctx context.Context, key string) (*SingleExportStatus, error) {
	b, err := c.postJSON(ctx, "/DocumentService.aspx/PDFTransition", map[string]any{"Key": key})
	if err != nil {
		return nil, err
	}
	var status SingleExportStatus
	if err := json.Unmarshal(b, &status); err != nil {
		return nil, fmt.Errorf("poll single export %s: decode: %w", key, err)
	}
	return &status, nil
}

// DownloadExport fetches the finished bulk export. Only valid once the
// status reports finished.
func (c *Client) DownloadExport(ctx context.Context, token string) ([]byte, error) {
	url := fmt.Sprintf("%s/ExportJobHandler.aspx/GetExportJob/?token=%s", c.baseURL, token)
	resp, err := c.t.Do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lfapi: export download returned status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export download: %w", err)
	}
	return b, nil
}

// DownloadSinglePDF fetches a finished single-document PDF.
func (c *Client) DownloadSinglePDF(ctx context.Context, key string, entryID int64) ([]byte, error) {
	url := fmt.Sprintf("%s/PDF10/%s/%d", c.baseURL, key, entryID)
	resp, err := c.t.Do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lfapi: single pdf download returned status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read single pdf download: %w", err)
	}
	return b, nil
}
