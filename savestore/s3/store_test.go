package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visforge/forge"
)

// fakeS3 serves the path-style subset of the S3 API the store uses from
// memory. Listings are paged two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func xmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Path-style: /bucket/key
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix"), req.URL.Query().Get("continuation-token")), nil
	}

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if decoded, ok := decodeChunked(body); ok {
			body = decoded
		}
		f.objects[key] = body
		return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {`"etag"`}}}, nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return xmlResponse(404, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`), nil
		}
		return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"Content-Type":   {"application/json"},
		}}, nil
	case http.MethodDelete:
		delete(f.objects, key)
		return &http.Response{StatusCode: 204, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	return xmlResponse(501, `<Error><Code>NotImplemented</Code></Error>`), nil
}

func (f *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start, _ := strconv.Atoi(token)
	end := min(start+2, len(keys))

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	if end < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
	}
	b.WriteString("</ListBucketResult>")
	return xmlResponse(200, b.String())
}

// decodeChunked unwraps a single-chunk aws-chunked body.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	n, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || n <= 0 || int64(len(parts[1])) != n || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeStore(t *testing.T, prefix string) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	store, err := New(context.Background(), Config{
		Region:          "us-east-1",
		Bucket:          "saves-bucket",
		Prefix:          prefix,
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		Primary:         "vis",
		HTTPClient:      &http.Client{Transport: fake},
	})
	require.NoError(t, err)
	return store, fake
}

func TestStore_SaveLoadDelete(t *testing.T) {
	store, fake := newFakeStore(t, "players/")
	ctx := context.Background()
	assert.Equal(t, "saves-bucket", store.Bucket())

	_, err := store.Load(ctx, "main")
	assert.True(t, errors.Is(err, forge.ErrSaveNotFound))

	require.NoError(t, store.Save(ctx, "main", &forge.SaveFile{SaveID: "abc", Version: forge.SaveVersion, Resources: map[string]uint64{"vis": 4}}))
	assert.Contains(t, fake.objects, "players/main.json")

	save, err := store.Load(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "abc", save.SaveID)
	assert.Equal(t, uint64(4), save.Resources["vis"])

	deleted, err := store.Delete(ctx, "main")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = store.Load(ctx, "main")
	assert.True(t, errors.Is(err, forge.ErrSaveNotFound))
}

func TestStore_SlotsPagesThroughListing(t *testing.T) {
	store, fake := newFakeStore(t, "players/")
	for _, key := range []string{"players/c.json", "players/a.json", "players/b.json", "players/nested/d.json", "players/readme.txt", "other/e.json"} {
		fake.objects[key] = []byte(`{"version": 2}`)
	}

	slots, err := store.Slots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, slots)
}

func TestStore_RejectsBadSlotsAndConfig(t *testing.T) {
	store, _ := newFakeStore(t, "")
	_, err := store.Load(context.Background(), "a/b")
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), " ", &forge.SaveFile{}))

	_, err = New(context.Background(), Config{})
	assert.EqualError(t, err, "s3 bucket required")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("VISFORGE_S3_BUCKET", "env-bucket")
	t.Setenv("VISFORGE_S3_PREFIX", "saves/")
	t.Setenv("VISFORGE_S3_PATH_STYLE", "TRUE")

	cfg := ConfigFromEnv()
	assert.Equal(t, "env-bucket", cfg.Bucket)
	assert.Equal(t, "saves/", cfg.Prefix)
	assert.True(t, cfg.PathStyle)
}
