package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

// BlobOpener reads data files from a blob store.
type BlobOpener struct{ Store storage.BlobStore }

func (o BlobOpener) Open(_ context.Context, file string) (io.ReadCloser, error) {
	return o.Store.Get(file)
}

// HTTPOpener reads data files relative to a base URL, the way a browser
// client would fetch them from the static site.
type HTTPOpener struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPOpener(baseURL string, timeout time.Duration) (*HTTPOpener, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPOpener{base: u, client: &http.Client{Timeout: timeout}}, nil
}

func (o *HTTPOpener) Open(ctx context.Context, file string) (io.ReadCloser, error) {
	ref, err := url.Parse(strings.TrimPrefix(file, "/"))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", req.URL, resp.Status)
	}
	return resp.Body, nil
}
