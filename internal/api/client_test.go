package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"artai-go/internal/api"
	"artai-go/internal/artai"
	"artai-go/internal/testutil"
)

// staticTokens hands out one token and records rejections.
type staticTokens struct {
	mu       sync.Mutex
	token    string
	rejected []string
}

func (s *staticTokens) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return nil
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}
}

func (s *staticTokens) TokenRejected(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = append(s.rejected, token)
}

func (s *staticTokens) Rejected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rejected...)
}

func newClient(t *testing.T, h http.HandlerFunc) (*api.Client, *staticTokens) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := api.New(api.Options{
		BaseURL:      srv.URL + "/api/artai",
		AssetBaseURL: "https://assets.example.test",
		UserAgent:    "artai-test",
		IDs:          testutil.NewStubIDGenerator(),
	})
	require.NoError(t, err)
	tokens := &staticTokens{token: "tok-1"}
	c.SetTokenSource(tokens)
	return c, tokens
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := api.New(api.Options{BaseURL: "crm.actium.ro/api"})
	require.Error(t, err)
}

func TestClient_Headers(t *testing.T) {
	var got http.Header
	var path string
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		path = r.URL.Path
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": 3, "username": "ana", "email": "ana@example.test"}})
	})

	u, err := c.GetUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), u.ID)
	assert.Equal(t, "/api/artai/user", path)
	assert.Equal(t, "Bearer tok-1", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "artai-test", got.Get("User-Agent"))
	assert.Equal(t, "req-1", got.Get("X-Request-ID"))
}

func TestClient_LoginSendsNoToken(t *testing.T) {
	var auth, contentType string
	var body map[string]string
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Logged in",
			"token":   "tok-2",
			"user":    map[string]any{"id": 9, "username": "ana", "email": "ana@example.test"},
		})
	})

	res, err := c.Login(context.Background(), "ana", "pw")
	require.NoError(t, err)
	assert.Empty(t, auth)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, map[string]string{"ident": "ana", "password": "pw"}, body)
	assert.Equal(t, "tok-2", res.Token)
	assert.Equal(t, int64(9), res.User.ID)
}

func TestClient_ResponseWithoutUser(t *testing.T) {
	bodies := map[string]any{
		"no user":   map[string]any{"message": "ok"},
		"null user": map[string]any{"user": nil},
		"empty":     map[string]any{"user": map[string]any{}},
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, body)
			})

			_, err := c.GetUser(context.Background())
			require.Error(t, err)
			assert.Equal(t, artai.KindDecode, artai.KindOf(err))

			_, err = c.Login(context.Background(), "ana", "pw")
			assert.Equal(t, artai.KindDecode, artai.KindOf(err))
		})
	}
}

func TestBootstrap_ResponseWithoutUserSignsOut(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
	})
	store := testutil.NewTestTokenStore()
	require.NoError(t, store.Save("persisted"))
	sm := artai.NewSessionManager(c, store, nil, nil)
	c.SetTokenSource(sm)

	err := sm.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Equal(t, artai.StatusAnonymous, sm.Status())
	assert.Nil(t, sm.User())
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestClient_UpdateUser(t *testing.T) {
	var body map[string]any
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Updated",
			"user":    map[string]any{"id": 9, "username": "ana2", "email": "ana@example.test"},
			"token":   "tok-rotated",
		})
	})

	name := "ana2"
	u, tok, err := c.UpdateUser(context.Background(), artai.ProfilePatch{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"username": "ana2"}, body)
	assert.Equal(t, "ana2", u.Username)
	assert.Equal(t, "tok-rotated", tok)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		kind      artai.Kind
		status    int
		message   string
		retryable bool
	}{
		{
			name: "validation message verbatim",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "The title field is required.", "errors": map[string]any{}})
			},
			kind:    artai.KindValidation,
			status:  http.StatusUnprocessableEntity,
			message: "The title field is required.",
		},
		{
			name: "text body falls back to status text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "<html>missing</html>", http.StatusNotFound)
			},
			kind:    artai.KindValidation,
			status:  http.StatusNotFound,
			message: "Not Found",
		},
		{
			name: "json without message falls back to status text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusForbidden, map[string]any{"error": "nope"})
			},
			kind:    artai.KindValidation,
			status:  http.StatusForbidden,
			message: "Forbidden",
		},
		{
			name: "server failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			kind:      artai.KindServer,
			status:    http.StatusServiceUnavailable,
			message:   "Service Unavailable",
			retryable: true,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "Too Many Attempts."})
			},
			kind:      artai.KindValidation,
			status:    http.StatusTooManyRequests,
			message:   "Too Many Attempts.",
			retryable: true,
		},
		{
			name: "undecodable success body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				io.WriteString(w, "<html>maintenance</html>")
			},
			kind:   artai.KindDecode,
			status: http.StatusOK,
		},
		{
			name: "broken json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"data": [`)
			},
			kind:   artai.KindDecode,
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, tokens := newClient(t, tt.handler)
			_, err := c.GetImage(context.Background(), 1)
			require.Error(t, err)

			var apiErr *artai.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, "GET /images/1", apiErr.Op)
			if tt.message != "" {
				assert.Equal(t, tt.message, apiErr.Message)
			}
			assert.Equal(t, tt.retryable, artai.IsRetryable(err))
			assert.Empty(t, tokens.Rejected())
		})
	}
}

func TestClient_AuthRejectedReportsToken(t *testing.T) {
	c, tokens := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
	})

	_, err := c.ListImages(context.Background(), artai.ImageQuery{})
	require.Error(t, err)
	assert.True(t, artai.IsAuthRejected(err))
	assert.Equal(t, "Unauthenticated.", err.Error())
	assert.False(t, artai.IsRetryable(err))
	assert.Equal(t, []string{"tok-1"}, tokens.Rejected())
}

func TestClient_LoginFailureDoesNotReject(t *testing.T) {
	c, tokens := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})
	})

	_, err := c.Login(context.Background(), "ana", "wrong")
	require.Error(t, err)
	assert.True(t, artai.IsAuthRejected(err))
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.Empty(t, tokens.Rejected())
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := api.New(api.Options{BaseURL: url})
	require.NoError(t, err)

	_, err = c.GetCategories(context.Background())
	require.Error(t, err)
	assert.Equal(t, artai.KindNetwork, artai.KindOf(err))
	assert.True(t, artai.IsRetryable(err))
}

func TestClient_TextMessage(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Logged out\n")
	})

	msg, err := c.Logout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Logged out", msg.Message)
}

func TestClient_ListImagesQuery(t *testing.T) {
	var query map[string][]string
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{
			"data":         []any{map[string]any{"id": 4, "user_id": 1, "title": "a", "description": nil, "file_path": "images/a.png", "is_public": 1}},
			"current_page": 2, "last_page": 3, "per_page": 1, "total": 3,
		})
	})

	public := false
	cat := int64(7)
	page, err := c.ListImages(context.Background(), artai.ImageQuery{Public: &public, CategoryID: &cat, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"public": {"0"}, "category_id": {"7"}, "page": {"2"}}, query)
	require.Len(t, page.Data, 1)
	assert.True(t, bool(page.Data[0].IsPublic))
	assert.Nil(t, page.Data[0].Description)
	assert.Equal(t, 3, page.LastPage)
}

var pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"

func TestClient_CreateImageMultipart(t *testing.T) {
	var fields map[string][]string
	var fileType, fileName, fileBody string
	var contentType string
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) || len(r.MultipartForm.File["image"]) != 1 {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		fields = r.MultipartForm.Value
		fh := r.MultipartForm.File["image"][0]
		fileType = fh.Header.Get("Content-Type")
		fileName = fh.Filename
		f, _ := fh.Open()
		b, _ := io.ReadAll(f)
		fileBody = string(b)
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Uploaded", "image": map[string]any{"id": 12, "title": "fox"}})
	})

	public := true
	cat := int64(3)
	res, err := c.CreateImage(context.Background(), artai.NewImage{
		File:       artai.Upload{Filename: "fox.png", Content: strings.NewReader(pngHeader)},
		Title:      "fox",
		IsPublic:   &public,
		CategoryID: &cat,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), res.Image.ID)
	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data; boundary="))
	assert.Equal(t, map[string][]string{"title": {"fox"}, "is_public": {"1"}, "category_id": {"3"}}, fields)
	assert.Equal(t, "image/png", fileType)
	assert.Equal(t, "fox.png", fileName)
	assert.Equal(t, pngHeader, fileBody)
}

func TestClient_CreateImageWithoutContent(t *testing.T) {
	var calls int
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	_, err := c.CreateImage(context.Background(), artai.NewImage{Title: "empty"})
	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestClient_UpdateImage(t *testing.T) {
	t.Run("json with present fields only", func(t *testing.T) {
		var body map[string]any
		var contentType string
		c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			contentType = r.Header.Get("Content-Type")
			json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusOK, map[string]any{"message": "Updated", "image": map[string]any{"id": 5}})
		})

		title := "renamed"
		public := false
		var none *int64
		_, err := c.UpdateImage(context.Background(), 5, artai.ImagePatch{Title: &title, IsPublic: &public, CategoryID: &none})
		require.NoError(t, err)
		assert.Equal(t, "application/json", contentType)
		assert.Equal(t, map[string]any{"title": "renamed", "is_public": false, "category_id": nil}, body)
	})

	t.Run("multipart with file", func(t *testing.T) {
		var fields map[string][]string
		var hasFile bool
		c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				http.Error(w, "bad form", http.StatusBadRequest)
				return
			}
			fields = r.MultipartForm.Value
			_, hasFile = r.MultipartForm.File["image"]
			writeJSON(w, http.StatusOK, map[string]any{"message": "Updated", "image": map[string]any{"id": 5}})
		})

		desc := ""
		_, err := c.UpdateImage(context.Background(), 5, artai.ImagePatch{
			File:        &artai.Upload{Filename: "new.png", Content: strings.NewReader(pngHeader)},
			Description: &desc,
		})
		require.NoError(t, err)
		assert.True(t, hasFile)
		assert.Equal(t, map[string][]string{"description": {""}}, fields)
	})

	t.Run("clearing the category with a file is refused", func(t *testing.T) {
		calls := 0
		c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			writeJSON(w, http.StatusOK, map[string]any{"message": "Updated", "image": map[string]any{"id": 5}})
		})

		var none *int64
		_, err := c.UpdateImage(context.Background(), 5, artai.ImagePatch{
			File:       &artai.Upload{Filename: "new.png", Content: strings.NewReader(pngHeader)},
			CategoryID: &none,
		})
		require.Error(t, err)
		assert.Equal(t, artai.KindValidation, artai.KindOf(err))
		assert.Zero(t, calls)
	})
}

func TestClient_SetImageCategories(t *testing.T) {
	var bodies []string
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		writeJSON(w, http.StatusOK, map[string]any{"message": "Synced", "image_id": 8, "categories": []any{}})
	})
	ctx := context.Background()

	_, err := c.SetImageCategories(ctx, 8, []int64{3, 5, 3})
	require.NoError(t, err)
	_, err = c.SetImageCategories(ctx, 8, nil)
	require.NoError(t, err)
	_, err = c.SetImageCategoriesCSV(ctx, 8, " 5, 3,,5 ")
	require.NoError(t, err)

	assert.Equal(t, []string{
		`{"category_ids":[3,5]}`,
		`{"category_ids":[]}`,
		`{"categories":"5,3"}`,
	}, bodies)

	_, err = c.SetImageCategoriesCSV(ctx, 8, "3,x")
	require.Error(t, err)
	assert.Equal(t, artai.KindValidation, artai.KindOf(err))
	assert.Len(t, bodies, 3)
}

func TestClient_ReferenceAndHistoryEnvelopes(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/artai/reference-images":
			writeJSON(w, http.StatusCreated, map[string]any{"message": "ok", "reference": map[string]any{"id": 2, "file_path": "refs/a.png"}})
		case "/api/artai/images/4/history":
			writeJSON(w, http.StatusCreated, map[string]any{"message": "ok", "history": map[string]any{"id": 6, "image_id": 4, "action": "crop"}})
		case "/api/artai/categories":
			writeJSON(w, http.StatusCreated, map[string]any{"message": "ok", "category": map[string]any{"id": 11, "name": "night"}})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	ref, err := c.CreateReferenceImage(ctx, artai.Upload{Filename: "a.png", Content: strings.NewReader(pngHeader)}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), ref.ID)

	h, err := c.AddImageHistory(ctx, 4, artai.HistoryEntry{Action: "crop"})
	require.NoError(t, err)
	assert.Equal(t, "crop", h.Action)

	cat, err := c.CreateCategory(ctx, "night", "")
	require.NoError(t, err)
	assert.Equal(t, int64(11), cat.ID)
}

func TestClient_AssetURL(t *testing.T) {
	c, _ := newClient(t, func(http.ResponseWriter, *http.Request) {})

	tests := map[string]string{
		"images/a.png":           "https://assets.example.test/images/a.png",
		"/images/a.png":          "https://assets.example.test/images/a.png",
		"https://cdn.test/b.png": "https://cdn.test/b.png",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, c.AssetURL(in), "AssetURL(%q)", in)
	}
}
