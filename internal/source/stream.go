// Package source extracts model and token usage from API request and
// response bodies, and discovers persisted usage files on disk.
package source

import (
	"bytes"
	"io"

	"github.com/tidwall/gjson"

	"github.com/theirongolddev/cccost/internal/model"
)

// dataPrefix marks an event-stream line carrying a payload.
var dataPrefix = []byte("data: ")

// StreamDecoder consumes an event stream chunk by chunk and keeps the
// last model and usage it has seen. It never fails.
type StreamDecoder struct {
	pending []byte
	result  Result
}

// NewStreamDecoder returns a decoder with the model set to "unknown" and
// all-zero usage.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{result: Result{Model: UnknownModel}}
}

// Write feeds one chunk. Complete lines are parsed immediately; an
// unterminated tail is kept for the next chunk. It always returns len(p), nil.
func (d *StreamDecoder) Write(p []byte) (int, error) {
	n := len(p)
	if len(d.pending) > 0 {
		d.pending = append(d.pending, p...)
		p = d.pending
	}

	for {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			break
		}
		d.parseLine(p[:idx])
		p = p[idx+1:]
	}

	// p may alias d.pending; copy the tail before reusing the buffer.
	tail := append([]byte(nil), p...)
	d.pending = tail
	return n, nil
}

// Finish parses any unterminated buffered line and returns the result.
func (d *StreamDecoder) Finish() Result {
	if len(d.pending) > 0 {
		d.parseLine(d.pending)
		d.pending = nil
	}
	return d.result
}

func (d *StreamDecoder) parseLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, dataPrefix) {
		return
	}
	payload := line[len(dataPrefix):]
	if !gjson.ValidBytes(payload) {
		return
	}

	event := gjson.ParseBytes(payload)
	if !event.IsObject() {
		return
	}
	d.result.Events++

	if m := event.Get("message.model"); m.Type == gjson.String && m.String() != "" {
		d.result.Model = m.String()
	}
	if u := event.Get("usage"); u.IsObject() {
		d.result.Usage = usageFrom(u)
		d.result.HasUsage = true
	}
}

// DecodeStream drains r through a StreamDecoder. Read errors end the
// stream early; whatever was decoded so far is returned.
func DecodeStream(r io.Reader) Result {
	d := NewStreamDecoder()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = d.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return d.Finish()
}

// usageFrom reads the four counters of a usage object. Missing or
// negative values count as zero.
func usageFrom(u gjson.Result) model.UsageRecord {
	return model.UsageRecord{
		InputTokens:              counter(u, "input_tokens"),
		OutputTokens:             counter(u, "output_tokens"),
		CacheCreationInputTokens: counter(u, "cache_creation_input_tokens"),
		CacheReadInputTokens:     counter(u, "cache_read_input_tokens"),
	}
}

func counter(u gjson.Result, key string) int64 {
	v := u.Get(key)
	if v.Type != gjson.Number {
		return 0
	}
	if n := v.Int(); n > 0 {
		return n
	}
	return 0
}
