package source

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/theirongolddev/cccost/internal/model"
)

const sampleStream = "event: message_start\n" +
	`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-20250514","usage":{"input_tokens":12,"output_tokens":1}}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}` + "\n\n" +
	"event: message_delta\n" +
	`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":1000,"output_tokens":500,"cache_creation_input_tokens":20,"cache_read_input_tokens":300}}` + "\n\n" +
	"event: message_stop\n" +
	`data: {"type":"message_stop"}` + "\n\n"

func decodeChunks(chunks ...string) Result {
	d := NewStreamDecoder()
	for _, c := range chunks {
		_, _ = d.Write([]byte(c))
	}
	return d.Finish()
}

func TestStreamDecoder_FullStream(t *testing.T) {
	got := decodeChunks(sampleStream)

	if got.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Model = %q", got.Model)
	}
	want := model.UsageRecord{
		InputTokens:              1000,
		OutputTokens:             500,
		CacheCreationInputTokens: 20,
		CacheReadInputTokens:     300,
	}
	if got.Usage != want {
		t.Errorf("Usage = %+v, want %+v", got.Usage, want)
	}
	if !got.HasUsage {
		t.Error("HasUsage = false")
	}
	if got.Events != 4 {
		t.Errorf("Events = %d, want 4", got.Events)
	}
}

func TestStreamDecoder_ModelLastWriteWins(t *testing.T) {
	got := decodeChunks(
		`data: {"message":{"model":"sonnet"}}`+"\n",
		`data: {"message":{"model":"haiku"}}`+"\n",
	)
	if got.Model != "haiku" {
		t.Fatalf("Model = %q, want haiku", got.Model)
	}
}

func TestStreamDecoder_UsageLastWriteWins(t *testing.T) {
	got := decodeChunks(
		`data: {"usage":{"input_tokens":100,"output_tokens":7}}`+"\n",
		`data: {"usage":{"output_tokens":9}}`+"\n",
	)
	want := model.UsageRecord{OutputTokens: 9}
	if got.Usage != want {
		t.Fatalf("Usage = %+v, want %+v (replaced, not merged)", got.Usage, want)
	}
}

func TestStreamDecoder_NoUsage(t *testing.T) {
	got := decodeChunks("event: ping\ndata: {\"type\":\"ping\"}\n\n")
	if got.Model != UnknownModel {
		t.Errorf("Model = %q, want %q", got.Model, UnknownModel)
	}
	if !got.Usage.IsZero() {
		t.Errorf("Usage = %+v, want zero", got.Usage)
	}
	if got.HasUsage {
		t.Error("HasUsage = true for stream without usage")
	}
}

func TestStreamDecoder_MalformedLinesSkipped(t *testing.T) {
	got := decodeChunks(
		"data: {not json}\n",
		"data: [1,2,3]\n",
		"data: \n",
		": comment\n",
		"garbage line\n",
		`data: {"usage":{"input_tokens":5}}`+"\n",
		"data: {\"usage\":\n",
	)
	if got.Usage.InputTokens != 5 {
		t.Fatalf("InputTokens = %d, want 5", got.Usage.InputTokens)
	}
	if got.Events != 1 {
		t.Fatalf("Events = %d, want 1", got.Events)
	}
}

func TestStreamDecoder_ChunkBoundaryInvariance(t *testing.T) {
	whole := decodeChunks(sampleStream)

	// Every split point of the stream must decode identically.
	for i := 1; i < len(sampleStream); i++ {
		split := decodeChunks(sampleStream[:i], sampleStream[i:])
		if split != whole {
			t.Fatalf("split at %d: got %+v, want %+v", i, split, whole)
		}
	}

	// Byte-at-a-time delivery too.
	d := NewStreamDecoder()
	for i := 0; i < len(sampleStream); i++ {
		_, _ = d.Write([]byte{sampleStream[i]})
	}
	if got := d.Finish(); got != whole {
		t.Fatalf("bytewise: got %+v, want %+v", got, whole)
	}
}

func TestStreamDecoder_FinalUnterminatedLine(t *testing.T) {
	got := decodeChunks(`data: {"message":{"model":"claude-opus-4"},"usage":{"input_tokens":3}}`)
	if got.Model != "claude-opus-4" || got.Usage.InputTokens != 3 {
		t.Fatalf("got %+v, want the tail parsed at end of stream", got)
	}
}

func TestStreamDecoder_CRLF(t *testing.T) {
	got := decodeChunks("data: {\"usage\":{\"output_tokens\":42}}\r\n\r\n")
	if got.Usage.OutputTokens != 42 {
		t.Fatalf("OutputTokens = %d, want 42", got.Usage.OutputTokens)
	}
}

func TestStreamDecoder_NegativeAndNonNumericCounters(t *testing.T) {
	got := decodeChunks(`data: {"usage":{"input_tokens":-4,"output_tokens":"12","cache_read_input_tokens":8}}` + "\n")
	want := model.UsageRecord{CacheReadInputTokens: 8}
	if got.Usage != want {
		t.Fatalf("Usage = %+v, want %+v", got.Usage, want)
	}
}

func TestStreamDecoder_CallerBufferReuse(t *testing.T) {
	d := NewStreamDecoder()
	buf := []byte(`data: {"usage":{"input_tok`)
	_, _ = d.Write(buf)
	// Overwrite the caller's buffer; the decoder must have copied the tail.
	copy(buf, bytes.Repeat([]byte("x"), len(buf)))
	_, _ = d.Write([]byte(`ens":77}}` + "\n"))
	if got := d.Finish(); got.Usage.InputTokens != 77 {
		t.Fatalf("InputTokens = %d, want 77", got.Usage.InputTokens)
	}
}

type errAfterReader struct {
	r   io.Reader
	err error
}

func (e *errAfterReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		return n, e.err
	}
	return n, err
}

func TestDecodeStream_ReadErrorKeepsPartial(t *testing.T) {
	r := &errAfterReader{
		r:   strings.NewReader(`data: {"message":{"model":"claude-haiku-4-5"}}` + "\n"),
		err: io.ErrUnexpectedEOF,
	}
	got := DecodeStream(r)
	if got.Model != "claude-haiku-4-5" {
		t.Fatalf("Model = %q", got.Model)
	}
}

// FuzzStreamDecoder checks that arbitrary input never panics and that
// splitting the input at any point does not change the result.
func FuzzStreamDecoder(f *testing.F) {
	f.Add([]byte(sampleStream), 10)
	f.Add([]byte("data: {\"usage\":{}}\n"), 3)
	f.Add([]byte("data: "), 0)
	f.Add([]byte("\n\n\n"), 1)
	f.Add([]byte(`data: {"message":{"model":123}}`), 7)
	f.Add([]byte{}, 0)

	f.Fuzz(func(t *testing.T, data []byte, split int) {
		whole := decodeChunks(string(data))
		if whole.Model == "" {
			t.Fatalf("empty model from %q", data)
		}
		if split < 0 || split > len(data) {
			return
		}
		parts := decodeChunks(string(data[:split]), string(data[split:]))
		if parts != whole {
			t.Fatalf("split %d: %+v != %+v", split, parts, whole)
		}
	})
}
