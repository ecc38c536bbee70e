// Package api is the HTTP client for the download backend's REST surface.
// The backend owns URL resolution, media extraction and transcoding; this
// client only moves requests and payloads.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/vidgrab/vidgrab/internal/errors"
)

const defaultTimeout = 30 * time.Second

// Client provides access to the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend API client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// VideoInfo is the metadata preview for a media URL.
type VideoInfo struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Thumbnail   string  `json:"thumbnail"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	ViewCount   int64   `json:"view_count"`
	Platform    string  `json:"platform"`
}

// ChannelName returns the channel, falling back to the uploader.
func (v *VideoInfo) ChannelName() string {
	if v.Channel != "" {
		return v.Channel
	}
	return v.Uploader
}

// HistoryEntry is one finished job as the server records it.
type HistoryEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Quality   string `json:"quality"`
	Format    string `json:"format"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// ActiveDownload describes a job the server is still tracking.
type ActiveDownload struct {
	DownloadID string  `json:"download_id"`
	Progress   float64 `json:"progress"`
	Status     string  `json:"status"`
}

// UploadedVideo describes a file previously uploaded for conversion.
type UploadedVideo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ConvertRequest asks the backend to transcode an uploaded file.
type ConvertRequest struct {
	Filename     string `json:"filename"`
	OutputFormat string `json:"output_format"`
	Quality      string `json:"quality,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
}

// errorDetail is the backend's error body.
type errorDetail struct {
	Detail string `json:"detail"`
}

// GetVideoInfo fetches the metadata preview for a URL.
func (c *Client) GetVideoInfo(ctx context.Context, mediaURL string) (*VideoInfo, error) {
	var info VideoInfo
	if err := c.postJSON(ctx, "/api/video-info", map[string]string{"url": mediaURL}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Cancel requests cancellation of a job. Idempotent on the server side.
func (c *Client) Cancel(ctx context.Context, jobID string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.postJSON(ctx, "/api/cancel/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// GetHistory fetches the server's authoritative history list.
func (c *Client) GetHistory(ctx context.Context) ([]HistoryEntry, error) {
	var resp struct {
		History []HistoryEntry `json:"history"`
	}
	if err := c.getJSON(ctx, "/api/history", &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// DeleteHistoryEntry deletes one server-side history entry.
func (c *Client) DeleteHistoryEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/history/"+url.PathEscape(id), nil, nil)
}

// ClearHistory deletes all server-side history.
func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/history", nil, nil)
}

// GetActiveDownloads lists jobs the server still tracks, so a fresh session
// can rediscover work started elsewhere.
func (c *Client) GetActiveDownloads(ctx context.Context) ([]ActiveDownload, error) {
	var resp struct {
		ActiveDownloads []ActiveDownload `json:"active_downloads"`
	}
	if err := c.getJSON(ctx, "/api/active-downloads", &resp); err != nil {
		return nil, err
	}
	return resp.ActiveDownloads, nil
}

// Artifact is a retrieved binary payload.
type Artifact struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
	Size        int64
}

// FetchArtifact retrieves a produced file. The locator is either a path on
// the backend (usually "/downloads/<name>") or an absolute URL.
func (c *Client) FetchArtifact(ctx context.Context, locator string) (*Artifact, error) {
	target := locator
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		if !strings.HasPrefix(locator, "/") {
			locator = "/downloads/" + url.PathEscape(locator)
		}
		target = c.baseURL + locator
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.DeliveryError("failed to retrieve artifact").WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp)
	}

	return &Artifact{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    filenameFromDisposition(resp.Header.Get("Content-Disposition")),
		Size:        resp.ContentLength,
	}, nil
}

// UploadVideo uploads a local file for the convert workflow.
func (c *Client) UploadVideo(ctx context.Context, filename string, content io.Reader) (*UploadedVideo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to buffer upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload-video", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ConnectionError("upload failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var uploaded UploadedVideo
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, apperrors.BackendError("unparsable upload response").WithCause(err)
	}
	return &uploaded, nil
}

// GetUploadedVideos lists files available for conversion.
func (c *Client) GetUploadedVideos(ctx context.Context) ([]UploadedVideo, error) {
	var resp struct {
		Videos []UploadedVideo `json:"videos"`
	}
	if err := c.getJSON(ctx, "/api/uploaded-videos", &resp); err != nil {
		return nil, err
	}
	return resp.Videos, nil
}

// DeleteUploadedVideo removes an uploaded file.
func (c *Client) DeleteUploadedVideo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/uploaded-videos/"+url.PathEscape(id), nil, nil)
}

// ConvertVideo converts an uploaded file and returns the produced filename.
func (c *Client) ConvertVideo(ctx context.Context, req *ConvertRequest) (string, error) {
	var resp struct {
		ConvertedFilename string `json:"converted_filename"`
	}
	if err := c.postJSON(ctx, "/api/convert-video", req, &resp); err != nil {
		return "", err
	}
	if resp.ConvertedFilename == "" {
		return "", apperrors.BackendError("convert response missing converted_filename")
	}
	return resp.ConvertedFilename, nil
}

// Status reports whether the backend answers its root endpoint.
type Status struct {
	Status             string   `json:"status"`
	Message            string   `json:"message"`
	SupportedPlatforms []string `json:"supported_platforms"`
}

// GetStatus probes the backend root endpoint.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.getJSON(ctx, "/", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// getJSON issues a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// postJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.ConnectionError(fmt.Sprintf("%s %s failed", method, path)).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.BackendError(fmt.Sprintf("unparsable response from %s", path)).WithCause(err)
	}
	return nil
}

// errorFromResponse turns a non-2xx response into an AppError, surfacing the
// backend's detail string when present.
func (c *Client) errorFromResponse(resp *http.Response) error {
	var detail errorDetail
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &detail); err == nil && detail.Detail != "" {
		return apperrors.BackendError(detail.Detail).WithDetails(map[string]any{
			"status_code": resp.StatusCode,
		})
	}
	return apperrors.BackendError(fmt.Sprintf("backend returned %s", resp.Status))
}

// filenameFromDisposition extracts the filename hint from a
// Content-Disposition header, preferring the RFC 5987 form.
func filenameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	if name := params["filename*"]; name != "" {
		if decoded, ok := strings.CutPrefix(name, "UTF-8''"); ok {
			if unescaped, err := url.QueryUnescape(decoded); err == nil {
				return unescaped
			}
		}
		return name
	}
	return params["filename"]
}
