package objectclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cboudereau/gcs-rsync/pkg/crc32c"
)

// Object mirrors the fields of the GCS JSON API's object resource that this
// facade cares about. List calls fill only the fields named by the
// partial-response field mask items(name,size,updated,crc32c); Metadata and
// Generation are filled only by calls returning the full resource, such as
// GetMetadata and the uploads.
type Object struct {
	Name      string `json:"name"`
	Size      string `json:"size"` // GCS returns size as a JSON string
	Updated   string `json:"updated"`
	CRC32C    string `json:"crc32c"`
	Metadata  map[string]string `json:"metadata"`
	Generation string `json:"generation"`
}

// SizeBytes parses the Size field.
func (o *Object) SizeBytes() (uint64, error) {
	n, err := strconv.ParseUint(o.Size, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("objectclient: parsing object size %q: %w", o.Size, err)
	}

	return n, nil
}

// CRC32CValue decodes the base64 big-endian CRC32C field.
func (o *Object) CRC32CValue() (uint32, error) {
	return crc32c.DecodeGCS(o.CRC32C)
}

// listObjectsResponse is the JSON body of a List call, trimmed by the
// partial-response field mask to items(name,size,updated,crc32c) plus
// nextPageToken.
type listObjectsResponse struct {
	Items         []Object `json:"items"`
	NextPageToken string   `json:"nextPageToken"`
}

// ListPage fetches one page of objects under prefix. delimiter is "/" for
// non-recursive listing, "" for recursive. pageToken is "" for the first page.
func (c *Client) ListPage(ctx context.Context, prefix, delimiter, pageToken string) ([]Object, string, error) {
	q := url.Values{}
	q.Set("prefix", prefix)
	q.Set("fields", "items(name,size,updated,crc32c),nextPageToken")

	if delimiter != "" {
		q.Set("delimiter", delimiter)
	}

	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	path := fmt.Sprintf("/storage/v1/b/%s/o?%s", url.PathEscape(c.bucket), q.Encode())

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var body listObjectsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("objectclient: decoding list response: %w", err)
	}

	return body.Items, body.NextPageToken, nil
}

// escapeObjectName percent-escapes an object name per GCS rules: forward
// slashes become %2F so the name round-trips through a path segment intact.
func escapeObjectName(name string) string {
	return strings.ReplaceAll(url.PathEscape(name), "/", "%2F")
}

// GetMetadata fetches a single object's metadata.
func (c *Client) GetMetadata(ctx context.Context, name string) (*Object, error) {
	path := fmt.Sprintf("/storage/v1/b/%s/o/%s", url.PathEscape(c.bucket), escapeObjectName(name))

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var obj Object
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("objectclient: decoding object metadata: %w", err)
	}

	return &obj, nil
}

// Download streams an object's content. The caller must close the returned
// ReadCloser.
func (c *Client) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	path := fmt.Sprintf("/storage/v1/b/%s/o/%s?alt=media", url.PathEscape(c.bucket), escapeObjectName(name))

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Delete removes an object.
func (c *Client) Delete(ctx context.Context, name string) error {
	path := fmt.Sprintf("/storage/v1/b/%s/o/%s", url.PathEscape(c.bucket), escapeObjectName(name))

	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return nil
}
