// Package fakeapi runs an in-process Artai API for tests. It keeps all state
// in memory, hashes passwords with bcrypt and issues HS256 JWT bearer tokens
// that are revoked on logout and on password change. Response envelopes and
// error bodies follow the real server.
package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"artai-go/internal/artai"
)

// Prefix is the path every route is mounted under.
const Prefix = "/api/artai"

// DefaultPerPage is the page size of every paginated listing.
const DefaultPerPage = 10

type account struct {
	artai.User
	hash []byte
}

type failure struct {
	status  int
	message string
}

type claims struct {
	jwt.RegisteredClaims
}

// Server is the fake API. Its zero value is not usable; call New.
type Server struct {
	srv    *httptest.Server
	secret []byte

	mu         sync.Mutex
	nextID     int64
	perPage    int
	users      map[int64]*account
	revoked    map[string]bool
	images     map[int64]*artai.Image
	history    map[int64][]artai.ImageHistory
	categories []artai.Category
	imageCats  map[int64][]int64
	tags       []artai.Tag
	likes      map[int64]map[int64]bool
	refs       []artai.ReferenceImage
	sessions   []artai.SessionRecord
	failures   []failure
	requests   int
}

// New starts a fake server and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		secret:    []byte("fakeapi-secret"),
		perPage:   DefaultPerPage,
		users:     make(map[int64]*account),
		revoked:   make(map[string]bool),
		images:    make(map[int64]*artai.Image),
		history:   make(map[int64][]artai.ImageHistory),
		imageCats: make(map[int64][]int64),
		likes:     make(map[int64]map[int64]bool),
	}
	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the API base URL to configure clients with.
func (s *Server) URL() string { return s.srv.URL + Prefix }

// AssetURL is the server root, used as the asset base.
func (s *Server) AssetURL() string { return s.srv.URL }

// Close stops the server. Later requests fail at the network level.
func (s *Server) Close() { s.srv.Close() }

// SetPerPage changes the page size of every listing.
func (s *Server) SetPerPage(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perPage = n
}

// Requests returns how many requests reached the server.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// FailNext makes the next request fail with status and message. Calls queue.
func (s *Server) FailNext(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{status: status, message: message})
}

// AddUser creates an account directly and returns it.
func (s *Server) AddUser(username, email, password string) artai.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.createUserLocked(username, email, password)
	if err != nil {
		panic(err)
	}
	return a.User
}

// IssueToken returns a valid token for userID.
func (s *Server) IssueToken(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.issueLocked(userID)
	if err != nil {
		panic(err)
	}
	return tok
}

// Revoke invalidates token as if it had expired server-side.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// AddCategory creates a category directly.
func (s *Server) AddCategory(name string) artai.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := artai.Category{ID: s.idLocked(), Name: name}
	s.categories = append(s.categories, c)
	return c
}

// AddImage stores img for its UserID, assigning an id and a file path.
func (s *Server) AddImage(img artai.Image) artai.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	img.ID = s.idLocked()
	if img.FilePath == "" {
		img.FilePath = fmt.Sprintf("images/%d.png", img.ID)
	}
	now := artai.Time{Time: s.now()}
	img.CreatedAt, img.UpdatedAt = &now, &now
	s.images[img.ID] = &img
	return img
}

// Image returns the stored image with id.
func (s *Server) Image(id int64) (artai.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return artai.Image{}, false
	}
	return *img, true
}

// ImageCategoryIDs returns the category ids assigned to an image, sorted.
func (s *Server) ImageCategoryIDs(imageID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.imageCats[imageID]...)
}

func (s *Server) idLocked() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) now() time.Time { return time.Now().UTC().Truncate(time.Second) }

func (s *Server) createUserLocked(username, email, password string) (*account, error) {
	for _, u := range s.users {
		if u.Username == username {
			return nil, errors.New("The username has already been taken.")
		}
		if u.Email == email {
			return nil, errors.New("The email has already been taken.")
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	a := &account{User: artai.User{ID: s.idLocked(), Username: username, Email: email, Role: "user"}, hash: hash}
	s.users[a.ID] = a
	return a, nil
}

func (s *Server) issueLocked(userID int64) (string, error) {
	now := time.Now()
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        strconv.FormatInt(s.idLocked(), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tok, nil
}

// authenticate resolves a bearer token to its account.
func (s *Server) authenticate(header string) (*account, string, bool) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, "", false
	}
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, "", false
	}
	c := parsed.Claims.(*claims)
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return nil, "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked[raw] {
		return nil, "", false
	}
	a, ok := s.users[id]
	return a, raw, ok
}

func paginate[T any](items []T, page, perPage int) artai.Paginated[T] {
	if page < 1 {
		page = 1
	}
	last := (len(items) + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	out := artai.Paginated[T]{
		Data:        []T{},
		CurrentPage: page,
		LastPage:    last,
		PerPage:     perPage,
		Total:       len(items),
	}
	start := (page - 1) * perPage
	if start < len(items) {
		end := min(start+perPage, len(items))
		out.Data = append(out.Data, items[start:end]...)
	}
	return out
}

func sortedIDs(m map[int64]*artai.Image) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// message writes the server's {"message": ...} body.
func message(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"message": msg})
}

// invalid writes a 422 validation body for one field.
func invalid(c *gin.Context, field, msg string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"message": msg,
		"errors":  gin.H{field: []string{msg}},
	})
}
