package main

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/ngrantham/streamhttp/internal/engine"
	"github.com/ngrantham/streamhttp/internal/httpx"
)

// echoPayload is the JSON body the demo handler writes back: the request
// target it was sent to, and the request body it read, base64-encoded
// since the body is arbitrary bytes rather than text.
type echoPayload struct {
	Method string `json:"method"`
	Target string `json:"target"`
	Body   string `json:"body_base64"`
}

// newEchoHandler builds a fresh per-connection RequestHandler that buffers
// a request's body and, at message-complete, echoes method/target/body
// back as a JSON document. A request whose Content-Length exceeds
// maxEchoBody is rejected at headers-complete via SKIP_BODY with a 413. A
// body without such a Content-Length (chunked) that grows past maxEchoBody
// stops being buffered and gets no response at message-complete, which
// drops the client.
func newEchoHandler() engine.RequestHandler {
	const maxEchoBody = 1 << 20 // 1 MiB

	var method, target string
	var body []byte
	var rejected bool

	return func(h *engine.HeaderView, b *engine.BodyView, slot *engine.ResponseSlot) {
		switch {
		case h != nil:
			method, target = h.Method, h.Target
			body = body[:0]
			rejected = false
			if _, err := httpx.ValidateRequestTarget(target); err != nil {
				h.Result = engine.ActionClose
				rejected = true
				return
			}
			if cl := h.Header.Get("Content-Length"); cl != "" {
				if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > maxEchoBody {
					h.Result = engine.ActionSkipBody
					rejected = true
					slot.Set(tooLargeResponse())
				}
			}
		case b != nil:
			if rejected {
				return
			}
			if len(body)+len(b.Data) > maxEchoBody {
				rejected = true
				return
			}
			body = append(body, b.Data...)
		default:
			if rejected {
				return
			}
			payload := echoPayload{
				Method: method,
				Target: target,
				Body:   base64.StdEncoding.EncodeToString(body),
			}
			data, err := json.Marshal(payload)
			if err != nil {
				slot.Set(errorResponse())
				return
			}
			slot.Set(&httpx.Response{
				Version: "1.1",
				Status:  200,
				Message: "OK",
				Header:  httpx.Header{"Content-Type": "application/json"},
				Body:    httpx.BytesBody(data),
			})
		}
	}
}

func tooLargeResponse() *httpx.Response {
	return &httpx.Response{Version: "1.1", Status: 413, Message: "Payload Too Large"}
}

func errorResponse() *httpx.Response {
	return &httpx.Response{Version: "1.1", Status: 500, Message: "Internal Server Error"}
}
