// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // GIF layers
	_ "image/jpeg" // JPEG layers
	_ "image/png"  // PNG layers
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"  // BMP layers
	_ "golang.org/x/image/tiff" // TIFF layers
	_ "golang.org/x/image/webp" // WebP layers
	"golang.org/x/time/rate"

	"github.com/jeranaias/vpexport/internal/model"
)

// MaxResourceBytes caps the size of a single layer source.
const MaxResourceBytes = 64 << 20

const maxRedirects = 10

// Loader fetches and decodes layer sources.
type Loader struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLoader creates a Loader. A nil client uses a cookie-less client with
// no credentials. A zero rate disables throttling.
func NewLoader(client *http.Client, perSecond float64, burst int, timeout time.Duration) *Loader {
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Loader{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
	}
}

// Load returns the decoded image for src as seen from a page at origin.
// Plain paths and file: URLs read the local filesystem.
func (l *Loader) Load(ctx context.Context, src, origin string) (image.Image, error) {
	u, err := url.Parse(src)
	if err != nil || len(u.Scheme) <= 1 {
		// Bare path, including Windows drive letters
		return l.loadFile(src)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return l.loadFile(u.Path)
	case "data":
		return decodeDataURL(src)
	case "http", "https":
		return l.fetch(ctx, u, origin)
	default:
		return nil, model.NewError(model.KindCaptureFailed, "capture",
			"unsupported resource scheme %q in %s", u.Scheme, redact(u))
	}
}

func (l *Loader) loadFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewError(model.KindCaptureFailed, "capture", "failed to load %s: %v", path, err)
	}
	defer f.Close()
	return decode(io.LimitReader(f, MaxResourceBytes), path)
}

// fetch performs an anonymous cross-origin request for u.
func (l *Loader) fetch(ctx context.Context, u *url.URL, origin string) (image.Image, error) {
	name := redact(u)

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, model.WrapError(model.KindCaptureFailed, "capture", fmt.Errorf("load %s: %w", name, err))
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	target := *u
	target.User = nil
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, model.NewError(model.KindCaptureFailed, "capture", "invalid resource %s: %v", name, err)
	}
	crossOrigin := !sameOrigin(u, origin)
	if crossOrigin {
		req.Header.Set("Origin", originHeader(origin))
	}
	req.Header.Set("Accept", "image/*")

	// A redirect chain that leaves the page origin at any hop needs a grant
	// on the final response, even when it started same-origin.
	client := *l.client
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if l.client.CheckRedirect != nil {
			if err := l.client.CheckRedirect(next, via); err != nil {
				return err
			}
		} else if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if !sameOrigin(next.URL, origin) {
			crossOrigin = true
		}
		if crossOrigin {
			next.Header.Set("Origin", originHeader(origin))
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, model.WrapError(model.KindCaptureFailed, "capture", fmt.Errorf("load %s: %w", name, ctxErr))
		}
		return nil, model.NewError(model.KindCaptureFailed, "capture", "failed to load %s: %v", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.NewError(model.KindCaptureFailed, "capture",
			"failed to load %s: %s", name, resp.Status)
	}
	if crossOrigin && !corsAllowed(resp.Header.Get("Access-Control-Allow-Origin"), origin) {
		return nil, model.NewError(model.KindCaptureFailed, "capture",
			"canvas tainted by cross-origin resource %s", name)
	}

	return decode(io.LimitReader(resp.Body, MaxResourceBytes), name)
}

func decode(r io.Reader, name string) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, model.NewError(model.KindCaptureFailed, "capture", "failed to decode %s: %v", name, err)
	}
	return img, nil
}

// decodeDataURL handles data:[<mediatype>][;base64],<data>.
func decodeDataURL(src string) (image.Image, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, model.NewError(model.KindCaptureFailed, "capture", "malformed data URL")
	}
	header, payload := src[len("data:"):comma], src[comma+1:]

	var data []byte
	var err error
	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		data, err = base64.StdEncoding.DecodeString(payload)
	} else {
		var s string
		s, err = url.PathUnescape(payload)
		data = []byte(s)
	}
	if err != nil {
		return nil, model.NewError(model.KindCaptureFailed, "capture", "malformed data URL: %v", err)
	}
	return decode(bytes.NewReader(data), "data URL")
}

// sameOrigin compares scheme, host and port. An empty page origin is
// opaque and matches nothing.
func sameOrigin(u *url.URL, origin string) bool {
	if origin == "" {
		return false
	}
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, o.Scheme) &&
		strings.EqualFold(u.Hostname(), o.Hostname()) &&
		effectivePort(u) == effectivePort(o)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func originHeader(origin string) string {
	if origin == "" {
		return "null"
	}
	return strings.TrimRight(origin, "/")
}

// corsAllowed applies the anonymous-mode check: "*" or an exact origin match.
func corsAllowed(allow, origin string) bool {
	allow = strings.TrimSpace(allow)
	if allow == "*" {
		return true
	}
	return allow != "" && allow == originHeader(origin)
}

// redact drops credentials and the query from a URL for messages.
func redact(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	c.Fragment = ""
	return c.String()
}
