// Package interceptor observes Messages API traffic through an
// http.RoundTripper decorator and reports token usage without delaying or
// altering the caller's request and response.
package interceptor

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/theirongolddev/cccost/internal/model"
	"github.com/theirongolddev/cccost/internal/source"
)

// MessagesPath is the path suffix of tracked requests.
const MessagesPath = "/v1/messages"

// Recorder receives the usage of each completed tracked response.
type Recorder interface {
	Record(sessionID, modelName string, usage model.UsageRecord) model.Observation
}

type contentKind int

const (
	contentOther contentKind = iota
	contentJSON
	contentStream
)

// Transport wraps a base RoundTripper. Requests to the tracked API host
// whose path ends in MessagesPath are observed; everything else goes
// straight to the base transport.
type Transport struct {
	base     http.RoundTripper
	host     string
	recorder Recorder
	logger   *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger for swallowed tracking errors.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// New returns a Transport tracking the host of apiBaseURL. A nil base uses
// http.DefaultTransport.
func New(base http.RoundTripper, apiBaseURL string, rec Recorder, opts ...Option) (*Transport, error) {
	u, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api base url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parsing api base url: %q has no host", apiBaseURL)
	}
	if base == nil {
		base = http.DefaultTransport
	}

	t := &Transport{
		base:     base,
		host:     canonicalHost(u),
		recorder: rec,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Tracks reports whether req is observed.
func (t *Transport) Tracks(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return canonicalHost(req.URL) == t.host && strings.HasSuffix(req.URL.Path, MessagesPath)
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.Tracks(req) {
		return t.base.RoundTrip(req)
	}

	out, sessionID := t.withReplayableBody(req)

	resp, err := t.base.RoundTrip(out)
	if err != nil || resp == nil {
		return resp, err
	}

	t.observe(resp, sessionID)
	return resp, nil
}

// Wait blocks until all in-flight response drains have been recorded or
// ctx is done.
func (t *Transport) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withReplayableBody reads the request body to find the session id and
// returns a shallow copy of req whose body replays the same bytes. A read
// error is replayed at the same position.
func (t *Transport) withReplayableBody(req *http.Request) (*http.Request, string) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, ""
	}

	data, readErr := io.ReadAll(req.Body)
	_ = req.Body.Close()

	out := new(http.Request)
	*out = *req

	if readErr != nil {
		t.logger.Debug("request body read failed", "error", readErr)
		out.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), errReader{readErr}))
		out.GetBody = nil
		return out, ""
	}

	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return out, source.ExtractSessionID(data)
}

func (t *Transport) observe(resp *http.Response, sessionID string) {
	kind := classifyContent(resp.Header.Get("Content-Type"))
	if kind == contentOther || resp.Body == nil || resp.Body == http.NoBody {
		return
	}
	enc := resp.Header.Get("Content-Encoding")
	decode, ok := bodyDecoder(enc)
	if !ok {
		t.logger.Debug("response encoding not tracked", "encoding", enc)
		return
	}

	q := newChunkQueue()
	resp.Body = &teeBody{rc: resp.Body, q: q}

	t.wg.Add(1)
	go t.drain(q, kind, decode, sessionID)
}

// decodeFunc wraps the raw duplicate in a reader for the decoded body.
type decodeFunc func(io.Reader) (io.ReadCloser, error)

// bodyDecoder returns the decoder for a Content-Encoding value. Stacked
// encodings and unknown codings report false.
func bodyDecoder(contentEncoding string) (decodeFunc, bool) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return nil, true
	case "gzip", "x-gzip":
		return func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) }, true
	case "deflate":
		return newDeflateReader, true
	case "br":
		return func(r io.Reader) (io.ReadCloser, error) { return io.NopCloser(brotli.NewReader(r)), nil }, true
	}
	return nil, false
}

// newDeflateReader accepts both zlib-wrapped and raw deflate bodies, since
// servers disagree on what "deflate" means.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("reading deflate header: %w", err)
	}
	if head[0]&0x0f == 8 && (uint16(head[0])<<8|uint16(head[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

func (t *Transport) drain(q *chunkQueue, kind contentKind, decode decodeFunc, sessionID string) {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			q.discard()
			t.logger.Debug("usage drain panicked", "panic", r)
		}
	}()

	var r io.Reader = q
	if decode != nil {
		zr, err := decode(q)
		if err != nil {
			q.discard()
			t.logger.Debug("encoded response unreadable", "error", err)
			return
		}
		defer zr.Close()
		r = zr
	}

	var res source.Result
	switch kind {
	case contentStream:
		res = source.DecodeStream(r)
		// A decoded body with no events means the coding did not match.
		if decode != nil && res.Events == 0 {
			q.discard()
			t.logger.Debug("encoded stream yielded no events")
			return
		}
	case contentJSON:
		body, err := io.ReadAll(r)
		if err != nil {
			q.discard()
			t.logger.Debug("response body read failed", "error", err)
			return
		}
		var ok bool
		if res, ok = source.ExtractResponse(body); !ok {
			return
		}
	}
	q.discard()

	if t.recorder == nil {
		return
	}
	obs := t.recorder.Record(sessionID, res.Model, res.Usage)
	t.logger.Debug("recorded usage",
		"session", sessionID,
		"model", obs.Model,
		"input", obs.Usage.InputTokens,
		"output", obs.Usage.OutputTokens,
		"cost", obs.Cost,
	)
}

func classifyContent(contentType string) contentKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch {
	case mediaType == "text/event-stream":
		return contentStream
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return contentJSON
	}
	return contentOther
}

// canonicalHost returns lowercase host:port with the scheme's default port
// filled in.
func canonicalHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		default:
			port = "443"
		}
	}
	return net.JoinHostPort(host, port)
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
