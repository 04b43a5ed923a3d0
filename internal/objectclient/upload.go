package objectclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"
)

// MTimeMetadataKey is the custom GCS object metadata field carrying the
// source's modification time, as decimal seconds since epoch. The GCS
// source reads this back on the return trip to restore mtime.
const MTimeMetadataKey = "goog-reserved-file-mtime"

// uploadObjectMetadata is the JSON metadata part of an upload request.
type uploadObjectMetadata struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func metadataFor(name string, mtime time.Time, restoreMTime bool) uploadObjectMetadata {
	m := uploadObjectMetadata{Name: name}

	if restoreMTime && !mtime.IsZero() {
		m.Metadata = map[string]string{
			MTimeMetadataKey: strconv.FormatInt(mtime.Unix(), 10),
		}
	}

	return m
}

// SimpleUpload uploads content in a single multipart/related POST request:
// the common small-object case. The content is read fully into memory to
// build the multipart body, so the request always carries that body's
// Content-Length; size is only logged.
func (c *Client) SimpleUpload(
	ctx context.Context, name string, r io.Reader, size int64, mtime time.Time, restoreMTime bool,
) (*Object, error) {
	c.logger.Info("simple upload", slog.String("name", name), slog.Int64("size", size))

	meta := metadataFor(name, mtime, restoreMTime)

	body, contentType, err := buildMultipartBody(meta, r)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/upload/storage/v1/b/%s/o?uploadType=multipart", url.PathEscape(c.bucket))

	resp, err := c.doUpload(ctx, path, contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var obj Object
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("objectclient: decoding simple upload response: %w", err)
	}

	return &obj, nil
}

// ResumableUpload initiates a resumable session and sends the full content
// in a single PUT to the session URI. Per the excluded-from-scope item
// "resumable multi-part uploads larger than a single HTTP request", the
// content itself is always one HTTP request; only the initiate step is a
// second, separate request.
func (c *Client) ResumableUpload(
	ctx context.Context, name string, r io.Reader, size int64, mtime time.Time, restoreMTime bool,
) (*Object, error) {
	c.logger.Info("resumable upload", slog.String("name", name), slog.Int64("size", size))

	meta := metadataFor(name, mtime, restoreMTime)

	metaBody, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("objectclient: marshaling resumable metadata: %w", err)
	}

	initPath := fmt.Sprintf("/upload/storage/v1/b/%s/o?uploadType=resumable", url.PathEscape(c.bucket))

	resp, err := c.Do(ctx, http.MethodPost, initPath, bytes.NewReader(metaBody))
	if err != nil {
		return nil, err
	}

	sessionURI := resp.Header.Get("Location")
	resp.Body.Close()

	if sessionURI == "" {
		return nil, fmt.Errorf("%w: resumable session initiation returned no Location header", errProtocol)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURI, r)
	if err != nil {
		return nil, fmt.Errorf("objectclient: building resumable content request: %w", err)
	}

	if size >= 0 {
		req.ContentLength = size
	}

	putResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("objectclient: resumable content upload: %w", err)
	}
	defer putResp.Body.Close()

	if putResp.StatusCode < http.StatusOK || putResp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(putResp.Body)
		return nil, &ObjectError{StatusCode: putResp.StatusCode, Body: string(body), Err: classifyStatus(putResp.StatusCode)}
	}

	var obj Object
	if err := json.NewDecoder(putResp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("objectclient: decoding resumable upload response: %w", err)
	}

	return &obj, nil
}

// doUpload executes a single multipart upload POST. It is not retried at
// this layer: the first attempt consumes the body reader.
func (c *Client) doUpload(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("objectclient: building upload request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		return nil, &ObjectError{StatusCode: resp.StatusCode, Body: string(errBody), Err: classifyStatus(resp.StatusCode)}
	}

	return resp, nil
}

// buildMultipartBody constructs the multipart/related body GCS expects for
// uploadType=multipart: a JSON metadata part followed by the content part.
func buildMultipartBody(meta uploadObjectMetadata, content io.Reader) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	metaPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", fmt.Errorf("objectclient: creating metadata part: %w", err)
	}

	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, "", fmt.Errorf("objectclient: encoding metadata part: %w", err)
	}

	contentPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/octet-stream"}})
	if err != nil {
		return nil, "", fmt.Errorf("objectclient: creating content part: %w", err)
	}

	if _, err := io.Copy(contentPart, content); err != nil {
		return nil, "", fmt.Errorf("objectclient: copying content part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("objectclient: closing multipart writer: %w", err)
	}

	return buf, "multipart/related; boundary=" + w.Boundary(), nil
}
