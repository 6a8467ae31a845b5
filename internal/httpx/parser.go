package httpx

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ngrantham/streamhttp/internal/netx"
)

// Signal is returned by every ParserCallbacks entry to tell the parser
// whether to keep going or abort the connection. It mirrors the abort
// contract of a llhttp-style callback-driven parser: any non-zero value is
// treated identically to malformed input.
type Signal int

const (
	SignalContinue Signal = 0
	SignalAbort    Signal = 1
)

// ParserCallbacks is the set of lifecycle callbacks a Parser drives, once
// per message, strictly in this order: Begin, then Method/URL/Version once
// each, then HeaderField/HeaderValue once per header (interleaved, field
// before its value), then HeadersComplete, then zero or more BodyChunk,
// then MessageComplete. Any callback left nil is treated as returning
// SignalContinue.
type ParserCallbacks struct {
	Begin           func() Signal
	Method          func(b []byte) Signal
	URL             func(b []byte) Signal
	Version         func(major, minor int) Signal
	HeaderField     func(b []byte) Signal
	HeaderValue     func(b []byte) Signal
	HeadersComplete func() Signal
	BodyChunk       func(b []byte) Signal
	MessageComplete func() Signal
}

var (
	ErrParserAborted    = errors.New("httpx: aborted by handler")
	ErrAmbiguousFraming = errors.New("httpx: both content-length and chunked transfer-encoding present")
	ErrUnexpectedEOF    = errors.New("httpx: connection closed mid-message")
	ErrMalformedHeader  = errors.New("httpx: malformed header line")
	ErrBadContentLength = errors.New("httpx: invalid content-length")
)

const (
	maxStartLineBytes = 8 * 1024
	maxHeaderLineBytes = 8 * 1024
)

type parserState int

const (
	stateRequestLine parserState = iota
	stateHeaders
	stateBodyRaw
	stateBodyChunked
	stateError
)

// Parser is a hand-rolled, incremental HTTP/1.x request tokenizer. It never
// assumes a request line, header block, or body arrives whole in one
// Execute call: request-line and header bytes are assembled a line at a
// time via a netx.LineReader, and body bytes are counted or
// chunk-decoded directly out of whatever Execute is handed, so the boundary
// between a read call and a logical message is never required to line up.
//
// A single Execute call may walk through many pipelined messages if the
// caller's data contains them; it may also make no callback progress at
// all if data is shorter than the next line or body chunk.
type Parser struct {
	cb      ParserCallbacks
	lines   *netx.LineReader
	state   parserState

	messageStarted bool

	protoMajor int
	protoMinor int

	haveContentLen bool
	contentLength  int64
	chunked        bool
	bodyRemain     int64
	chunkDec       *chunkDecoder

	connClose     bool
	connKeepAlive bool
	lastKeepAlive bool

	err error
}

// NewParser builds a Parser that drives cb as it recognizes each message.
func NewParser(cb ParserCallbacks) *Parser {
	p := &Parser{cb: cb, lines: netx.NewLineReader()}
	p.resetMessage()
	return p
}

// KeepAlive reports whether the most recently completed message permits
// the connection to be reused for another request. Only meaningful after
// MessageComplete has fired.
func (p *Parser) KeepAlive() bool { return p.lastKeepAlive }

func (p *Parser) resetMessage() {
	p.messageStarted = false
	p.protoMajor, p.protoMinor = 0, 0
	p.haveContentLen = false
	p.contentLength = 0
	p.chunked = false
	p.bodyRemain = 0
	p.chunkDec = nil
	p.connClose = false
	p.connKeepAlive = false
	p.state = stateRequestLine
}

// Execute feeds data — exactly the bytes a single non-blocking read
// returned — to the parser. It returns a non-nil error, fatal for the
// connection, on malformed input or a handler callback signalling abort.
// Bytes left over after a message completes are reprocessed immediately as
// the start of the next pipelined message.
func (p *Parser) Execute(data []byte) error {
	if p.state == stateError {
		return p.err
	}
	for {
		if len(data) == 0 {
			return nil
		}
		var rest []byte
		var err error
		switch p.state {
		case stateRequestLine:
			rest, err = p.stepRequestLine(data)
		case stateHeaders:
			rest, err = p.stepHeaders(data)
		case stateBodyRaw:
			rest, err = p.stepBodyRaw(data)
		case stateBodyChunked:
			rest, err = p.stepBodyChunked(data)
		default:
			return p.err
		}
		if err != nil {
			p.state = stateError
			p.err = err
			return err
		}
		if rest == nil {
			return nil
		}
		data = rest
	}
}

// Finish signals that the read side has reached end-of-stream. Between
// messages this is a no-op; mid-message it is a protocol error, since the
// peer closed before the message it started was ever completed.
func (p *Parser) Finish() error {
	if p.state == stateError {
		return p.err
	}
	if !p.messageStarted {
		return nil
	}
	p.state = stateError
	p.err = ErrUnexpectedEOF
	return p.err
}

func (p *Parser) fireBegin() error {
	if p.messageStarted {
		return nil
	}
	p.messageStarted = true
	if p.cb.Begin != nil {
		if p.cb.Begin() != SignalContinue {
			return ErrParserAborted
		}
	}
	return nil
}

// stepRequestLine consumes at most one line from data. It returns a nil
// rest slice (meaning "all of data was consumed, nothing left to process")
// when no full line is available yet.
func (p *Parser) stepRequestLine(data []byte) ([]byte, error) {
	if err := p.fireBegin(); err != nil {
		return nil, err
	}
	line, rest, ok, err := p.lines.Next(data, maxStartLineBytes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if len(line) == 0 {
		// Tolerate a stray leading CRLF between pipelined messages, as
		// RFC 7230 §3.5 recommends.
		return rest, nil
	}
	rl, err := parseRequestLine(string(line))
	if err != nil {
		return nil, err
	}
	p.protoMajor, p.protoMinor = rl.ProtoMajor, rl.ProtoMinor

	if p.cb.Method != nil && p.cb.Method([]byte(rl.Method)) != SignalContinue {
		return nil, ErrParserAborted
	}
	if p.cb.URL != nil && p.cb.URL([]byte(rl.Target)) != SignalContinue {
		return nil, ErrParserAborted
	}
	if p.cb.Version != nil && p.cb.Version(rl.ProtoMajor, rl.ProtoMinor) != SignalContinue {
		return nil, ErrParserAborted
	}

	p.state = stateHeaders
	return rest, nil
}

// stepHeaders consumes at most one header line (or the terminating blank
// line) from data.
func (p *Parser) stepHeaders(data []byte) ([]byte, error) {
	line, rest, ok, err := p.lines.Next(data, maxHeaderLineBytes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if len(line) == 0 {
		return p.finishHeaders(rest)
	}

	field, value, err := splitHeaderLine(line)
	if err != nil {
		return nil, err
	}

	if err := p.observeHeader(field, value); err != nil {
		return nil, err
	}

	if p.cb.HeaderField != nil && p.cb.HeaderField([]byte(field)) != SignalContinue {
		return nil, ErrParserAborted
	}
	if p.cb.HeaderValue != nil && p.cb.HeaderValue([]byte(value)) != SignalContinue {
		return nil, ErrParserAborted
	}
	return rest, nil
}

// splitHeaderLine splits "Field: value" into its trimmed parts per
// RFC 7230 §3.2.
func splitHeaderLine(line []byte) (field, value string, err error) {
	colon := -1
	for i, c := range line {
		if c == ':' {
			colon = i
			break
		}
	}
	if colon <= 0 {
		return "", "", ErrMalformedHeader
	}
	field = string(line[:colon])
	value = strings.TrimSpace(string(line[colon+1:]))
	for i := 0; i < len(field); i++ {
		if field[i] == ' ' || field[i] == '\t' {
			return "", "", ErrMalformedHeader
		}
	}
	return field, value, nil
}

// observeHeader watches Content-Length, Transfer-Encoding, and Connection
// as they stream past, without building a full header map: the parser
// itself only needs these three to decide body framing and keep-alive
// eligibility, leaving general header storage to the caller driven by
// HeaderField/HeaderValue.
func (p *Parser) observeHeader(field, value string) error {
	switch {
	case strings.EqualFold(field, "Content-Length"):
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return ErrBadContentLength
		}
		if p.haveContentLen && n != p.contentLength {
			return ErrBadContentLength
		}
		p.haveContentLen = true
		p.contentLength = n

	case strings.EqualFold(field, "Transfer-Encoding"):
		for _, tok := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), "chunked") {
				p.chunked = true
			}
		}

	case strings.EqualFold(field, "Connection"):
		for _, tok := range strings.Split(value, ",") {
			switch strings.ToLower(strings.TrimSpace(tok)) {
			case "close":
				p.connClose = true
			case "keep-alive":
				p.connKeepAlive = true
			}
		}
	}
	return nil
}

// finishHeaders fires HeadersComplete and picks the body framing mode per
// the Content-Length/Transfer-Encoding rules: a message carrying both is a
// framing ambiguity and is rejected outright, matching the long-standing
// HTTP request-smuggling guidance against trusting either header in that
// situation.
func (p *Parser) finishHeaders(rest []byte) ([]byte, error) {
	if p.haveContentLen && p.chunked {
		return nil, ErrAmbiguousFraming
	}

	if p.cb.HeadersComplete != nil {
		switch p.cb.HeadersComplete() {
		case SignalContinue:
		default:
			return nil, ErrParserAborted
		}
	}

	switch {
	case p.chunked:
		p.chunkDec = newChunkDecoder()
		p.state = stateBodyChunked
	case p.haveContentLen && p.contentLength > 0:
		p.bodyRemain = p.contentLength
		p.state = stateBodyRaw
	default:
		return p.finishMessage(rest)
	}
	return rest, nil
}

func (p *Parser) stepBodyRaw(data []byte) ([]byte, error) {
	n := int64(len(data))
	if n > p.bodyRemain {
		n = p.bodyRemain
	}
	if n > 0 {
		if p.cb.BodyChunk != nil && p.cb.BodyChunk(data[:n]) != SignalContinue {
			return nil, ErrParserAborted
		}
		data = data[n:]
		p.bodyRemain -= n
	}
	if p.bodyRemain == 0 {
		return p.finishMessage(data)
	}
	return nil, nil
}

func (p *Parser) stepBodyChunked(data []byte) ([]byte, error) {
	var abort bool
	done, err := p.chunkDec.feed(data, func(chunk []byte) error {
		if p.cb.BodyChunk != nil && p.cb.BodyChunk(chunk) != SignalContinue {
			abort = true
			return ErrParserAborted
		}
		return nil
	})
	if abort {
		return nil, ErrParserAborted
	}
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, nil
	}
	return p.finishMessage(nil)
}

// finishMessage fires MessageComplete, computes keep-alive eligibility per
// RFC 7230 §6.3 (HTTP/1.1 defaults to persistent unless Connection: close
// is present; HTTP/1.0 defaults to non-persistent unless Connection:
// keep-alive is present), and resets state for the next pipelined message.
// rest may be nil (meaning "nothing left to process this Execute call");
// an empty-but-non-nil slice is returned as-is so the caller's loop can
// keep iterating if more pipelined bytes remain.
func (p *Parser) finishMessage(rest []byte) ([]byte, error) {
	if p.protoMajor == 1 && p.protoMinor >= 1 {
		p.lastKeepAlive = !p.connClose
	} else {
		p.lastKeepAlive = p.connKeepAlive
	}

	if p.cb.MessageComplete != nil && p.cb.MessageComplete() != SignalContinue {
		return nil, ErrParserAborted
	}

	p.resetMessage()
	if rest == nil {
		return nil, nil
	}
	if len(rest) == 0 {
		// Nothing pipelined yet, but signal "keep going" rather than
		// "consumed nothing": an empty non-nil slice still lets the
		// Execute loop terminate cleanly on its own len(data) == 0 check.
		return rest, nil
	}
	return rest, nil
}
