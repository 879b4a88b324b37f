package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"artai-go/internal/artai"
)

// BodyKind says how a response body was read.
type BodyKind int

const (
	BodyJSON BodyKind = iota + 1
	BodyText
)

// Body is a response body read according to its Content-Type.
type Body struct {
	Kind BodyKind
	JSON json.RawMessage
	Text string
}

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

func readBody(resp *http.Response) (Body, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Body{Kind: BodyText}, err
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if len(raw) > 0 && !json.Valid(raw) {
			return Body{Kind: BodyText, Text: string(raw)}, errors.New("invalid JSON body")
		}
		return Body{Kind: BodyJSON, JSON: raw}, nil
	}
	return Body{Kind: BodyText, Text: string(raw)}, nil
}

// decode stores the body in out. A text body can only fill a Message.
func (b Body) decode(out any) error {
	if out == nil {
		return nil
	}
	switch b.Kind {
	case BodyJSON:
		if len(b.JSON) == 0 {
			return errors.New("empty JSON body")
		}
		return json.Unmarshal(b.JSON, out)
	case BodyText:
		if m, ok := out.(*artai.Message); ok {
			m.Message = strings.TrimSpace(b.Text)
			return nil
		}
		return fmt.Errorf("expected a JSON body, got %q", truncate(b.Text, 64))
	}
	return fmt.Errorf("unknown body kind %d", b.Kind)
}

// message returns the "message" field of a JSON body, if any.
func (b Body) message() string {
	if b.Kind != BodyJSON || len(b.JSON) == 0 {
		return ""
	}
	var m struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b.JSON, &m); err != nil {
		return ""
	}
	return m.Message
}

// errorFor normalizes a non-2xx response. The message is the body's
// "message" field, else the status text, else artai.DefaultErrorMessage.
func errorFor(op string, resp *http.Response, body Body) *artai.Error {
	msg := body.message()
	if msg == "" {
		msg = statusText(resp)
	}

	var kind artai.Kind
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind = artai.KindAuthRejected
	case resp.StatusCode >= 500:
		kind = artai.KindServer
	default:
		kind = artai.KindValidation
	}
	return artai.NewError(kind, op, resp.StatusCode, msg, nil)
}

// statusText returns the reason phrase of the status line.
func statusText(resp *http.Response) string {
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
