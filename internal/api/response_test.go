package api

import (
	"net/http"
	"testing"

	"artai-go/internal/artai"
)

func TestErrorFor_MessageFallback(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		body Body
		want string
	}{
		{
			name: "json message",
			resp: &http.Response{StatusCode: 400, Status: "400 Bad Request"},
			body: Body{Kind: BodyJSON, JSON: []byte(`{"message":"Name taken"}`)},
			want: "Name taken",
		},
		{
			name: "status line reason",
			resp: &http.Response{StatusCode: 409, Status: "409 Conflict"},
			body: Body{Kind: BodyText, Text: "conflict"},
			want: "Conflict",
		},
		{
			name: "no status line",
			resp: &http.Response{StatusCode: 404},
			body: Body{Kind: BodyText},
			want: "Not Found",
		},
		{
			name: "nothing at all",
			resp: &http.Response{StatusCode: 499},
			body: Body{Kind: BodyJSON},
			want: artai.DefaultErrorMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errorFor("GET /x", tt.resp, tt.body)
			if err.Message != tt.want {
				t.Errorf("Message = %q, want %q", err.Message, tt.want)
			}
		})
	}
}

func TestBody_Decode(t *testing.T) {
	var msg artai.Message
	if err := (Body{Kind: BodyText, Text: " done \n"}).decode(&msg); err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if msg.Message != "done" {
		t.Errorf("Message = %q, want %q", msg.Message, "done")
	}

	var img artai.Image
	if err := (Body{Kind: BodyText, Text: "done"}).decode(&img); err == nil {
		t.Error("decode() of text into an image expected error")
	}
	if err := (Body{Kind: BodyJSON}).decode(&img); err == nil {
		t.Error("decode() of an empty JSON body expected error")
	}
	if err := (Body{Kind: BodyJSON}).decode(nil); err != nil {
		t.Errorf("decode(nil) error = %v", err)
	}
}
