package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"artai-go/internal/artai"
)

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// anonymous requests never carry the bearer token.
	anonymous bool
	err       error
}

func get(path string, query url.Values) *request {
	return &request{method: http.MethodGet, path: path, query: query}
}

// post is a POST without a body.
func post(path string) *request {
	return &request{method: http.MethodPost, path: path}
}

// postJSON serializes v as the request body.
func postJSON(path string, v any) *request {
	r := post(path)
	b, err := json.Marshal(v)
	if err != nil {
		r.err = fmt.Errorf("encoding body: %w", err)
		return r
	}
	r.body = bytes.NewReader(b)
	r.contentType = "application/json"
	return r
}

// form builds a multipart body. The first error sticks and is reported
// when the request is sent.
type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

// optional writes the field only when value is not empty.
func (f *form) optional(name, value string) {
	if value != "" {
		f.field(name, value)
	}
}

func (f *form) flag(name string, v *bool) {
	if v == nil {
		return
	}
	if *v {
		f.field(name, "1")
	} else {
		f.field(name, "0")
	}
}

func (f *form) id(name string, v *int64) {
	if v != nil {
		f.field(name, strconv.FormatInt(*v, 10))
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// file writes up as a file part. Its content type is sniffed from the
// first bytes when the upload does not declare one.
func (f *form) file(name string, up *artai.Upload) {
	if f.err != nil || up == nil {
		return
	}
	if up.Content == nil {
		f.err = fmt.Errorf("upload %q has no content", name)
		return
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(up.Content, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		f.err = fmt.Errorf("reading %s: %w", up.Filename, err)
		return
	}
	head = head[:n]

	ct := up.ContentType
	if ct == "" {
		ct = http.DetectContentType(head)
	}
	filename := up.Filename
	if filename == "" {
		filename = name
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", ct)
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return
	}
	if _, err := part.Write(head); err != nil {
		f.err = err
		return
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		f.err = fmt.Errorf("reading %s: %w", filename, err)
	}
}

// post finishes the body. The content type comes from the writer so the
// boundary always matches.
func (f *form) post(path string) *request {
	r := post(path)
	if f.err == nil {
		f.err = f.w.Close()
	}
	if f.err != nil {
		r.err = f.err
		return r
	}
	r.body = &f.buf
	r.contentType = f.w.FormDataContentType()
	return r
}

func pageQuery(userID *int64, page int) url.Values {
	q := url.Values{}
	if userID != nil {
		q.Set("user_id", strconv.FormatInt(*userID, 10))
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	return q
}
