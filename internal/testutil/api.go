package testutil

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"artai-go/internal/artai"
)

// FakeAPI is an in-memory artai.AuthAPI and artai.ResourceAPI. Like the real
// client it reads the bearer token from a TokenSource and reports 401s back
// to it. Safe for concurrent use.
type FakeAPI struct {
	// Hook, when set, runs at the start of every call with the call's name
	// (e.g. "ListImages"). Returning an error fails the call with it. Tests
	// use it to inject failures and to hold calls in flight.
	Hook func(ctx context.Context, op string) error

	// PerPage is the listing page size.
	PerPage int

	mu         sync.Mutex
	source     artai.TokenSource
	accounts   map[string]*fakeAccount // by username and email
	tokens     map[string]int64        // token -> user id
	nextID     int64
	tokenSeq   int
	calls      map[string]int
	images     map[int64]*artai.Image
	categories []artai.Category
	tags       []artai.Tag
	assigned   map[int64][]int64
	likes      map[int64][]int64
	history    map[int64][]artai.ImageHistory
	references []artai.ReferenceImage
	sessions   []artai.SessionRecord
}

type fakeAccount struct {
	user     artai.User
	password string
}

var (
	_ artai.AuthAPI     = (*FakeAPI)(nil)
	_ artai.ResourceAPI = (*FakeAPI)(nil)
)

// NewFakeAPI returns an empty fake with a page size of 4.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		PerPage:  4,
		accounts: make(map[string]*fakeAccount),
		tokens:   make(map[string]int64),
		calls:    make(map[string]int),
		images:   make(map[int64]*artai.Image),
		assigned: make(map[int64][]int64),
		likes:    make(map[int64][]int64),
		history:  make(map[int64][]artai.ImageHistory),
	}
}

// SetTokenSource sets where the fake reads the caller's token from.
func (f *FakeAPI) SetTokenSource(ts artai.TokenSource) {
	f.mu.Lock()
	f.source = ts
	f.mu.Unlock()
}

// AddUser creates an account and returns it.
func (f *FakeAPI) AddUser(username, email, password string) artai.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUser(username, email, password)
}

func (f *FakeAPI) addUser(username, email, password string) artai.User {
	f.nextID++
	acct := &fakeAccount{
		user:     artai.User{ID: f.nextID, Username: username, Email: email, Role: "user"},
		password: password,
	}
	f.accounts[username] = acct
	f.accounts[email] = acct
	return acct.user
}

// IssueToken returns a valid token for userID.
func (f *FakeAPI) IssueToken(userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issue(userID)
}

func (f *FakeAPI) issue(userID int64) string {
	f.tokenSeq++
	tok := fmt.Sprintf("token-%d-%d", userID, f.tokenSeq)
	f.tokens[tok] = userID
	return tok
}

// RevokeToken makes token invalid, as if it expired on the server.
func (f *FakeAPI) RevokeToken(token string) {
	f.mu.Lock()
	delete(f.tokens, token)
	f.mu.Unlock()
}

// AddImage stores img, assigning an id.
func (f *FakeAPI) AddImage(img artai.Image) artai.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	img.ID = f.nextID
	f.images[img.ID] = &img
	return img
}

// AddImageWithID stores img under its own id.
func (f *FakeAPI) AddImageWithID(img artai.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[img.ID] = &img
	if img.ID > f.nextID {
		f.nextID = img.ID
	}
}

// AddCategory stores a category, assigning an id.
func (f *FakeAPI) AddCategory(name string) artai.Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := artai.Category{ID: f.nextID, Name: name}
	f.categories = append(f.categories, c)
	return c
}

// Assigned returns the category ids the server holds for an image.
func (f *FakeAPI) Assigned(imageID int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.assigned[imageID])
}

// Calls returns how many times op was called.
func (f *FakeAPI) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeAPI) begin(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	hook := f.Hook
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, op)
	}
	return nil
}

// authorize resolves the caller's token, reporting a rejection like the real
// client does.
func (f *FakeAPI) authorize(op string) (int64, error) {
	f.mu.Lock()
	src := f.source
	f.mu.Unlock()

	var tok string
	if src != nil {
		if t := src.Token(); t != nil {
			tok = t.AccessToken
		}
	}

	f.mu.Lock()
	id, ok := f.tokens[tok]
	f.mu.Unlock()
	if ok {
		return id, nil
	}
	if tok != "" && src != nil {
		src.TokenRejected(tok)
	}
	return 0, artai.NewError(artai.KindAuthRejected, op, http.StatusUnauthorized, "Unauthenticated.", nil)
}

func notFound(op string) error {
	return artai.NewError(artai.KindValidation, op, http.StatusNotFound, "Not found", nil)
}

func (f *FakeAPI) Login(ctx context.Context, ident, password string) (*artai.AuthResult, error) {
	if err := f.begin(ctx, "Login"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[ident]
	if !ok || acct.password != password {
		return nil, artai.NewError(artai.KindAuthRejected, "POST /login", http.StatusUnauthorized, "Invalid credentials", nil)
	}
	return &artai.AuthResult{Message: "Logged in", Token: f.issue(acct.user.ID), User: acct.user}, nil
}

func (f *FakeAPI) Register(ctx context.Context, username, email, password string) (*artai.AuthResult, error) {
	if err := f.begin(ctx, "Register"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.accounts[username]; taken {
		return nil, artai.NewError(artai.KindValidation, "POST /register", http.StatusUnprocessableEntity, "The username has already been taken.", nil)
	}
	if _, taken := f.accounts[email]; taken {
		return nil, artai.NewError(artai.KindValidation, "POST /register", http.StatusUnprocessableEntity, "The email has already been taken.", nil)
	}
	u := f.addUser(username, email, password)
	return &artai.AuthResult{Message: "Registered", Token: f.issue(u.ID), User: u}, nil
}

func (f *FakeAPI) Logout(ctx context.Context) (*artai.Message, error) {
	if err := f.begin(ctx, "Logout"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("POST /logout"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.source != nil {
		if t := f.source.Token(); t != nil {
			delete(f.tokens, t.AccessToken)
		}
	}
	f.mu.Unlock()
	return &artai.Message{Message: "Logged out"}, nil
}

func (f *FakeAPI) GetUser(ctx context.Context) (*artai.User, error) {
	if err := f.begin(ctx, "GetUser"); err != nil {
		return nil, err
	}
	id, err := f.authorize("GET /user")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.accounts {
		if acct.user.ID == id {
			u := acct.user
			return &u, nil
		}
	}
	return nil, notFound("GET /user")
}

func (f *FakeAPI) UpdateUser(ctx context.Context, patch artai.ProfilePatch) (*artai.User, string, error) {
	if err := f.begin(ctx, "UpdateUser"); err != nil {
		return nil, "", err
	}
	id, err := f.authorize("POST /user")
	if err != nil {
		return nil, "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var acct *fakeAccount
	for _, a := range f.accounts {
		if a.user.ID == id {
			acct = a
			break
		}
	}
	if acct == nil {
		return nil, "", notFound("POST /user")
	}
	delete(f.accounts, acct.user.Username)
	delete(f.accounts, acct.user.Email)
	if patch.Username != nil {
		acct.user.Username = *patch.Username
	}
	if patch.Email != nil {
		acct.user.Email = *patch.Email
	}
	if patch.Role != nil {
		acct.user.Role = *patch.Role
	}
	newToken := ""
	if patch.Password != nil {
		acct.password = *patch.Password
		newToken = f.issue(acct.user.ID)
	}
	f.accounts[acct.user.Username] = acct
	f.accounts[acct.user.Email] = acct
	u := acct.user
	return &u, newToken, nil
}

func (f *FakeAPI) ListImages(ctx context.Context, q artai.ImageQuery) (*artai.Paginated[artai.Image], error) {
	if err := f.begin(ctx, "ListImages"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("GET /images"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []artai.Image
	for _, img := range f.images {
		if q.CategoryID != nil && (img.CategoryID == nil || *img.CategoryID != *q.CategoryID) &&
			!slices.Contains(f.assigned[img.ID], *q.CategoryID) {
			continue
		}
		if q.UserID != nil && img.UserID != *q.UserID {
			continue
		}
		if q.Public != nil && bool(img.IsPublic) != *q.Public {
			continue
		}
		all = append(all, *img)
	}
	slices.SortFunc(all, func(a, b artai.Image) int { return int(a.ID - b.ID) })
	return paginate(all, q.Page, f.PerPage), nil
}

func paginate[T any](all []T, page, perPage int) *artai.Paginated[T] {
	if perPage < 1 {
		perPage = 15
	}
	last := (len(all) + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	if page < 1 {
		page = 1
	}
	start := min((page-1)*perPage, len(all))
	end := min(start+perPage, len(all))
	data := append([]T{}, all[start:end]...)
	return &artai.Paginated[T]{Data: data, CurrentPage: page, LastPage: last, PerPage: perPage, Total: len(all)}
}

func (f *FakeAPI) GetImage(ctx context.Context, id int64) (*artai.Image, error) {
	if err := f.begin(ctx, "GetImage"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("GET /images/{id}"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return nil, notFound("GET /images/{id}")
	}
	c := *img
	return &c, nil
}

func (f *FakeAPI) CreateImage(ctx context.Context, in artai.NewImage) (*artai.ImageResult, error) {
	if err := f.begin(ctx, "CreateImage"); err != nil {
		return nil, err
	}
	uid, err := f.authorize("POST /images")
	if err != nil {
		return nil, err
	}
	img := artai.Image{UserID: uid, Title: in.Title, FilePath: "storage/images/" + in.File.Filename, CategoryID: in.CategoryID}
	if in.IsPublic != nil {
		img.IsPublic = artai.Flag(*in.IsPublic)
	}
	if in.Description != "" {
		img.Description = &in.Description
	}
	img = f.AddImage(img)
	return &artai.ImageResult{Message: "Image uploaded", Image: img}, nil
}

func (f *FakeAPI) UpdateImage(ctx context.Context, id int64, patch artai.ImagePatch) (*artai.ImageResult, error) {
	if err := f.begin(ctx, "UpdateImage"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("POST /images/{id}"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return nil, notFound("POST /images/{id}")
	}
	if patch.Title != nil {
		img.Title = *patch.Title
	}
	if patch.Description != nil {
		d := *patch.Description
		img.Description = &d
	}
	if patch.Status != nil {
		st := *patch.Status
		img.Status = &st
	}
	if patch.IsPublic != nil {
		img.IsPublic = artai.Flag(*patch.IsPublic)
	}
	if patch.CategoryID != nil {
		img.CategoryID = *patch.CategoryID
	}
	if patch.File != nil {
		img.FilePath = "storage/images/" + patch.File.Filename
	}
	return &artai.ImageResult{Message: "Image updated", Image: *img}, nil
}

func (f *FakeAPI) DeleteImage(ctx context.Context, id int64) (*artai.Message, error) {
	if err := f.begin(ctx, "DeleteImage"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("POST /images-delete/{id}"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.images[id]; !ok {
		return nil, notFound("POST /images-delete/{id}")
	}
	delete(f.images, id)
	delete(f.assigned, id)
	return &artai.Message{Message: "Image deleted"}, nil
}

func (f *FakeAPI) GetImageHistory(ctx context.Context, id int64) ([]artai.ImageHistory, error) {
	if err := f.begin(ctx, "GetImageHistory"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("GET /images/{id}/history"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.history[id]), nil
}

func (f *FakeAPI) AddImageHistory(ctx context.Context, id int64, in artai.HistoryEntry) (*artai.ImageHistory, error) {
	if err := f.begin(ctx, "AddImageHistory"); err != nil {
		return nil, err
	}
	uid, err := f.authorize("POST /images/{id}/history")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	h := artai.ImageHistory{ID: f.nextID, ImageID: id, UserID: uid, Action: in.Action}
	f.history[id] = append(f.history[id], h)
	return &h, nil
}

func (f *FakeAPI) GetCategories(ctx context.Context) ([]artai.Category, error) {
	if err := f.begin(ctx, "GetCategories"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("GET /categories"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.categories), nil
}

func (f *FakeAPI) CreateCategory(ctx context.Context, name, description string) (*artai.Category, error) {
	if err := f.begin(ctx, "CreateCategory"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("POST /categories"); err != nil {
		return nil, err
	}
	c := f.AddCategory(name)
	if description != "" {
		c.Description = &description
	}
	return &c, nil
}

func (f *FakeAPI) GetTags(ctx context.Context) ([]artai.Tag, error) {
	if err := f.begin(ctx, "GetTags"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("GET /tags"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.tags), nil
}

func (f *FakeAPI) CreateTag(ctx context.Context, name string) (*artai.Tag, error) {
	if err := f.begin(ctx, "CreateTag"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("POST /tags"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := artai.Tag{ID: f.nextID, Name: name}
	f.tags = append(f.tags, t)
	return &t, nil
}

func (f *FakeAPI) imageCategories(imageID int64) *artai.ImageCategories {
	ic := &artai.ImageCategories{ImageID: imageID, Categories: []artai.Category{}}
	for _, id := range f.assigned[imageID] {
		for _, c := range f.categories {
			if c.ID == id {
				ic.Categories = append(ic.Categories, c)
			}
		}
	}
	n := len(ic.Categories)
	ic.Count = &n
	return ic
}

func (f *FakeAPI) GetImageCategories(ctx context.Context, imageID int64) (*artai.ImageCategories, error) {
	if err := f.begin(ctx, "GetImageCategories"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("GET /images/{id}/categories"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageCategories(imageID), nil
}

// SetImageCategories stores ids as given, duplicates included, so tests can
// see whether the caller deduplicated.
func (f *FakeAPI) SetImageCategories(ctx context.Context, imageID int64, ids []int64) (*artai.ImageCategories, error) {
	if err := f.begin(ctx, "SetImageCategories"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("POST /images/{id}/categories"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned[imageID] = slices.Clone(ids)
	return f.imageCategories(imageID), nil
}

// SetImageCategoriesCSV parses csv the way the client does and stores the
// resulting set.
func (f *FakeAPI) SetImageCategoriesCSV(ctx context.Context, imageID int64, csv string) (*artai.ImageCategories, error) {
	ids, err := artai.ParseCategoryCSV(csv)
	if err != nil {
		return nil, artai.NewError(artai.KindValidation, "POST /images/{id}/categories", 0, err.Error(), err)
	}
	return f.SetImageCategories(ctx, imageID, ids)
}

func (f *FakeAPI) LikeImage(ctx context.Context, id int64) (*artai.Message, error) {
	if err := f.begin(ctx, "LikeImage"); err != nil {
		return nil, err
	}
	uid, err := f.authorize("POST /images/{id}/like")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.likes[id], uid) {
		f.likes[id] = append(f.likes[id], uid)
	}
	return &artai.Message{Message: "Liked"}, nil
}

func (f *FakeAPI) UnlikeImage(ctx context.Context, id int64) (*artai.Message, error) {
	if err := f.begin(ctx, "UnlikeImage"); err != nil {
		return nil, err
	}
	uid, err := f.authorize("POST /images/{id}/unlike")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.likes[id] = slices.DeleteFunc(f.likes[id], func(v int64) bool { return v == uid })
	return &artai.Message{Message: "Unliked"}, nil
}

func (f *FakeAPI) GetImageLikes(ctx context.Context, id int64) (*artai.LikeInfo, error) {
	if err := f.begin(ctx, "GetImageLikes"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("GET /images/{id}/likes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	info := &artai.LikeInfo{Count: len(f.likes[id]), Users: []artai.LikeUser{}}
	for _, uid := range f.likes[id] {
		uid := uid
		info.Users = append(info.Users, artai.LikeUser{ID: &uid})
	}
	return info, nil
}

func (f *FakeAPI) ListReferenceImages(ctx context.Context, q artai.PageQuery) (*artai.Paginated[artai.ReferenceImage], error) {
	if err := f.begin(ctx, "ListReferenceImages"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("GET /reference-images"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return paginate(slices.Clone(f.references), q.Page, f.PerPage), nil
}

func (f *FakeAPI) CreateReferenceImage(ctx context.Context, file artai.Upload, description string) (*artai.ReferenceImage, error) {
	if err := f.begin(ctx, "CreateReferenceImage"); err != nil {
		return nil, err
	}
	uid, err := f.authorize("POST /reference-images")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ref := artai.ReferenceImage{ID: f.nextID, UserID: uid, FilePath: "storage/references/" + file.Filename}
	if description != "" {
		ref.Description = &description
	}
	f.references = append(f.references, ref)
	return &ref, nil
}

func (f *FakeAPI) ListSessions(ctx context.Context, q artai.PageQuery) (*artai.Paginated[artai.SessionRecord], error) {
	if err := f.begin(ctx, "ListSessions"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("GET /sessions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return paginate(slices.Clone(f.sessions), q.Page, f.PerPage), nil
}

// AddSession stores a server-side session record for userID.
func (f *FakeAPI) AddSession(userID int64) artai.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s := artai.SessionRecord{ID: f.nextID, UserID: userID}
	f.sessions = append(f.sessions, s)
	return s
}

func (f *FakeAPI) DeleteSession(ctx context.Context, id int64) (*artai.Message, error) {
	if err := f.begin(ctx, "DeleteSession"); err != nil {
		return nil, err
	}
	if _, err := f.authorize("POST /sessions/{id}"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sessions)
	f.sessions = slices.DeleteFunc(f.sessions, func(s artai.SessionRecord) bool { return s.ID == id })
	if len(f.sessions) == n {
		return nil, notFound("POST /sessions/{id}")
	}
	return &artai.Message{Message: "Session deleted"}, nil
}

func (f *FakeAPI) Generate(ctx context.Context, in artai.GenerateRequest) (*artai.ImageResult, error) {
	if err := f.begin(ctx, "Generate"); err != nil {
		return nil, err
	}
	uid, err := f.authorize("POST /generate")
	if err != nil {
		return nil, err
	}
	title := in.Title
	if title == "" {
		title = in.Prompt
	}
	img := f.AddImage(artai.Image{UserID: uid, Title: title, FilePath: "storage/generated/image.png", CategoryID: in.CategoryID})
	return &artai.ImageResult{Message: "Image generated", Image: img, URL: "/storage/generated/image.png"}, nil
}

func (f *FakeAPI) EditImage(ctx context.Context, id int64, file artai.Upload) (*artai.ImageResult, error) {
	if err := f.begin(ctx, "EditImage"); err != nil {
		return nil, err
	}
	uid, err := f.authorize("POST /edit/{id}")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return nil, notFound("POST /edit/{id}")
	}
	img.FilePath = "storage/images/" + file.Filename
	f.nextID++
	f.history[id] = append(f.history[id], artai.ImageHistory{ID: f.nextID, ImageID: id, UserID: uid, Action: "edit"})
	return &artai.ImageResult{Message: "Image edited", Image: *img}, nil
}
