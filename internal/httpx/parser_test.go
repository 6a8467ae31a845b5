package httpx

import (
	"strings"
	"testing"
)

// recorder captures every callback fire in order, the way a table-driven
// assertion over a transcript is easiest to read.
type recorder struct {
	events []string
	body   []byte
}

func (r *recorder) callbacks() ParserCallbacks {
	return ParserCallbacks{
		Begin: func() Signal {
			r.events = append(r.events, "begin")
			return SignalContinue
		},
		Method: func(b []byte) Signal {
			r.events = append(r.events, "method:"+string(b))
			return SignalContinue
		},
		URL: func(b []byte) Signal {
			r.events = append(r.events, "url:"+string(b))
			return SignalContinue
		},
		Version: func(major, minor int) Signal {
			r.events = append(r.events, "version")
			return SignalContinue
		},
		HeaderField: func(b []byte) Signal {
			r.events = append(r.events, "field:"+string(b))
			return SignalContinue
		},
		HeaderValue: func(b []byte) Signal {
			r.events = append(r.events, "value:"+string(b))
			return SignalContinue
		},
		HeadersComplete: func() Signal {
			r.events = append(r.events, "headers-complete")
			return SignalContinue
		},
		BodyChunk: func(b []byte) Signal {
			r.body = append(r.body, b...)
			r.events = append(r.events, "body-chunk")
			return SignalContinue
		},
		MessageComplete: func() Signal {
			r.events = append(r.events, "message-complete")
			return SignalContinue
		},
	}
}

func lastN(events []string, n int) []string {
	if len(events) < n {
		return events
	}
	return events[len(events)-n:]
}

func TestParserSimpleGetNoBody(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	req := "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if err := p.Execute([]byte(req)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"begin", "method:GET", "url:/index.html", "version", "field:Host", "value:example.com", "headers-complete", "message-complete"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q (full: %v)", i, rec.events[i], want[i], rec.events)
		}
	}
	if !p.KeepAlive() {
		t.Fatal("HTTP/1.1 with no Connection header should default to keep-alive")
	}
}

func TestParserSplitAcrossArbitraryFeeds(t *testing.T) {
	req := "POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"
	for split := 1; split < len(req); split++ {
		rec := &recorder{}
		p := NewParser(rec.callbacks())
		if err := p.Execute([]byte(req[:split])); err != nil {
			t.Fatalf("split %d: first Execute: %v", split, err)
		}
		if err := p.Execute([]byte(req[split:])); err != nil {
			t.Fatalf("split %d: second Execute: %v", split, err)
		}
		if string(rec.body) != "hello" {
			t.Fatalf("split %d: body = %q, want hello", split, rec.body)
		}
		if got := lastN(rec.events, 1); got[0] != "message-complete" {
			t.Fatalf("split %d: did not reach message-complete: %v", split, rec.events)
		}
	}
}

func TestParserChunkedBody(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	req := "POST /upload HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	if err := p.Execute([]byte(req)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(rec.body) != "Wikipedia" {
		t.Fatalf("body = %q, want Wikipedia", rec.body)
	}
}

func TestParserPipelinedRequests(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	req := "GET /a HTTP/1.1\r\nHost: x\r\n\r\nGET /b HTTP/1.1\r\nHost: x\r\n\r\n"
	if err := p.Execute([]byte(req)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, e := range rec.events {
		if e == "message-complete" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("message-complete fired %d times, want 2 (events: %v)", count, rec.events)
	}
}

func TestParserPipelinedSplitMidSecondMessage(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	first := "GET /a HTTP/1.1\r\nHost: x\r\n\r\n"
	second := "GET /b HTTP/1.1\r\nHost: x\r\n\r\n"
	if err := p.Execute([]byte(first + second[:5])); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := p.Execute([]byte(second[5:])); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	count := 0
	for _, e := range rec.events {
		if e == "message-complete" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("message-complete fired %d times, want 2 (events: %v)", count, rec.events)
	}
}

func TestParserAmbiguousFramingRejected(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	req := "POST /x HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\nhello"
	err := p.Execute([]byte(req))
	if err != ErrAmbiguousFraming {
		t.Fatalf("err = %v, want ErrAmbiguousFraming", err)
	}
}

func TestParserMalformedRequestLine(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	err := p.Execute([]byte("GET /only-two-fields\r\n\r\n"))
	if err == nil {
		t.Fatal("expected an error for a malformed request line")
	}
}

func TestParserHeadersCompleteAbortStopsParsing(t *testing.T) {
	cb := ParserCallbacks{
		HeadersComplete: func() Signal { return SignalAbort },
	}
	p := NewParser(cb)
	err := p.Execute([]byte("GET /x HTTP/1.1\r\nHost: x\r\n\r\nshould-not-be-parsed-as-body"))
	if err != ErrParserAborted {
		t.Fatalf("err = %v, want ErrParserAborted", err)
	}
}

func TestParserHTTP10DefaultsToClose(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	if err := p.Execute([]byte("GET / HTTP/1.0\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.KeepAlive() {
		t.Fatal("HTTP/1.0 with no Connection header should default to close")
	}
}

func TestParserHTTP10KeepAliveHeader(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	if err := p.Execute([]byte("GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.KeepAlive() {
		t.Fatal("HTTP/1.0 with Connection: keep-alive should stay open")
	}
}

func TestParserHTTP11ConnectionClose(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	if err := p.Execute([]byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.KeepAlive() {
		t.Fatal("HTTP/1.1 with Connection: close should not be reused")
	}
}

func TestParserFinishMidMessageIsError(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	if err := p.Execute([]byte("GET / HTTP/1.1\r\nHost: x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Finish(); err != ErrUnexpectedEOF {
		t.Fatalf("Finish() = %v, want ErrUnexpectedEOF", err)
	}
}

func TestParserFinishBetweenMessagesIsClean(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	if err := p.Execute([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish() = %v, want nil", err)
	}
}

func TestParserContentLengthZeroHasNoBody(t *testing.T) {
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	req := "POST /x HTTP/1.1\r\nHost: x\r\nContent-Length: 0\r\n\r\n"
	if err := p.Execute([]byte(req)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.body) != 0 {
		t.Fatalf("body = %q, want empty", rec.body)
	}
	for _, e := range rec.events {
		if e == "body-chunk" {
			t.Fatal("Content-Length: 0 should never fire body-chunk")
		}
	}
}

func TestParserLargeBodyAssembledAcrossManyReads(t *testing.T) {
	body := strings.Repeat("x", 10000)
	rec := &recorder{}
	p := NewParser(rec.callbacks())
	head := "POST /x HTTP/1.1\r\nHost: x\r\nContent-Length: 10000\r\n\r\n"
	if err := p.Execute([]byte(head)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < len(body); i += 7 {
		end := i + 7
		if end > len(body) {
			end = len(body)
		}
		if err := p.Execute([]byte(body[i:end])); err != nil {
			t.Fatalf("unexpected error feeding body: %v", err)
		}
	}
	if string(rec.body) != body {
		t.Fatalf("body length mismatch: got %d, want %d", len(rec.body), len(body))
	}
}
