package fakeapi

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"artai-go/internal/artai"
)

const userKey = "user"
const tokenKey = "token"

func (s *Server) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.count)

	g := r.Group(Prefix)
	g.POST("/register", s.register)
	g.POST("/login", s.login)

	authed := g.Group("", s.requireAuth)
	authed.POST("/logout", s.logout)
	authed.GET("/user", s.getUser)
	authed.POST("/user", s.updateUser)

	authed.GET("/images", s.listImages)
	authed.POST("/images", s.createImage)
	authed.GET("/images/:id", s.getImage)
	authed.POST("/images/:id", s.updateImage)
	authed.POST("/images-delete/:id", s.deleteImage)
	authed.GET("/images/:id/history", s.getHistory)
	authed.POST("/images/:id/history", s.addHistory)
	authed.GET("/images/:id/categories", s.getImageCategories)
	authed.POST("/images/:id/categories", s.setImageCategories)
	authed.POST("/images/:id/like", s.like)
	authed.POST("/images/:id/unlike", s.unlike)
	authed.GET("/images/:id/likes", s.getLikes)

	authed.GET("/categories", s.listCategories)
	authed.POST("/categories", s.createCategory)
	authed.GET("/tags", s.listTags)
	authed.POST("/tags", s.createTag)

	authed.GET("/reference-images", s.listReferences)
	authed.POST("/reference-images", s.createReference)
	authed.GET("/sessions", s.listSessions)
	authed.POST("/sessions/:id", s.deleteSession)

	authed.POST("/generate", s.generate)
	authed.POST("/edit/:id", s.edit)
	return r
}

// count tallies requests and serves queued failures.
func (s *Server) count(c *gin.Context) {
	s.mu.Lock()
	s.requests++
	var f *failure
	if len(s.failures) > 0 {
		f = &s.failures[0]
		s.failures = s.failures[1:]
	}
	s.mu.Unlock()

	if f != nil {
		if f.message == "" {
			c.AbortWithStatus(f.status)
			return
		}
		c.AbortWithStatusJSON(f.status, gin.H{"message": f.message})
		return
	}
	c.Next()
}

func (s *Server) requireAuth(c *gin.Context) {
	a, tok, ok := s.authenticate(c.GetHeader("Authorization"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
		return
	}
	c.Set(userKey, a.ID)
	c.Set(tokenKey, tok)
	c.Next()
}

func currentUser(c *gin.Context) int64 { return c.GetInt64(userKey) }

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		message(c, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int64, bool) {
	v := c.Query(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

func page(c *gin.Context) int {
	n, ok := queryInt(c, "page")
	if !ok {
		return 1
	}
	return int(n)
}

// Auth

func (s *Server) register(c *gin.Context) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		invalid(c, "username", "The username field is required.")
		return
	}
	switch {
	case in.Username == "":
		invalid(c, "username", "The username field is required.")
		return
	case !strings.Contains(in.Email, "@"):
		invalid(c, "email", "The email field must be a valid email address.")
		return
	case len(in.Password) < 6:
		invalid(c, "password", "The password field must be at least 6 characters.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.createUserLocked(in.Username, in.Email, in.Password)
	if err != nil {
		invalid(c, "username", err.Error())
		return
	}
	tok, err := s.issueLocked(a.ID)
	if err != nil {
		message(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.startSessionLocked(a.ID)
	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful", "token": tok, "user": a.User})
}

func (s *Server) login(c *gin.Context) {
	var in struct {
		Ident    string `json:"ident"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Ident == "" {
		invalid(c, "ident", "The ident field is required.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var found *account
	for _, a := range s.users {
		if a.Username == in.Ident || a.Email == in.Ident {
			found = a
			break
		}
	}
	if found == nil || bcrypt.CompareHashAndPassword(found.hash, []byte(in.Password)) != nil {
		message(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	tok, err := s.issueLocked(found.ID)
	if err != nil {
		message(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.startSessionLocked(found.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": tok, "user": found.User})
}

func (s *Server) startSessionLocked(userID int64) {
	now := artai.Time{Time: s.now()}
	s.sessions = append(s.sessions, artai.SessionRecord{ID: s.idLocked(), UserID: userID, StartedAt: &now, CreatedAt: &now})
}

func (s *Server) logout(c *gin.Context) {
	s.mu.Lock()
	s.revoked[c.GetString(tokenKey)] = true
	s.mu.Unlock()
	message(c, http.StatusOK, "Logged out")
}

func (s *Server) getUser(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"user": s.users[currentUser(c)].User})
}

func (s *Server) updateUser(c *gin.Context) {
	var in artai.ProfilePatch
	if err := c.ShouldBindJSON(&in); err != nil {
		invalid(c, "username", "The given data was invalid.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	me := s.users[currentUser(c)]
	if in.Role != nil && *in.Role != me.Role {
		message(c, http.StatusForbidden, "You cannot change your own role.")
		return
	}
	for _, u := range s.users {
		if u.ID == me.ID {
			continue
		}
		if in.Username != nil && u.Username == *in.Username {
			invalid(c, "username", "The username has already been taken.")
			return
		}
		if in.Email != nil && u.Email == *in.Email {
			invalid(c, "email", "The email has already been taken.")
			return
		}
	}

	body := gin.H{"message": "Profile updated"}
	if in.Username != nil {
		me.Username = *in.Username
	}
	if in.Email != nil {
		me.Email = *in.Email
	}
	if in.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.MinCost)
		if err != nil {
			message(c, http.StatusInternalServerError, err.Error())
			return
		}
		me.hash = hash
		// Changing the password rotates the token.
		s.revoked[c.GetString(tokenKey)] = true
		tok, err := s.issueLocked(me.ID)
		if err != nil {
			message(c, http.StatusInternalServerError, err.Error())
			return
		}
		body["token"] = tok
	}
	body["user"] = me.User
	c.JSON(http.StatusOK, body)
}

// Images

func (s *Server) listImages(c *gin.Context) {
	public, hasPublic := c.GetQuery("public")
	userID, hasUser := queryInt(c, "user_id")
	categoryID, hasCategory := queryInt(c, "category_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []artai.Image
	for _, id := range sortedIDs(s.images) {
		img := s.images[id]
		if hasPublic && bool(img.IsPublic) != (public == "1") {
			continue
		}
		if hasUser && img.UserID != userID {
			continue
		}
		if hasCategory && (img.CategoryID == nil || *img.CategoryID != categoryID) {
			continue
		}
		out = append(out, *img)
	}
	c.JSON(http.StatusOK, paginate(out, page(c), s.perPage))
}

func (s *Server) getImage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		message(c, http.StatusNotFound, "Image not found")
		return
	}
	c.JSON(http.StatusOK, img)
}

// ownImageLocked looks up an image the current user owns, writing the error
// response when there is none. The caller holds s.mu.
func (s *Server) ownImageLocked(c *gin.Context) *artai.Image {
	id, ok := pathID(c)
	if !ok {
		return nil
	}
	img, ok := s.images[id]
	if !ok {
		message(c, http.StatusNotFound, "Image not found")
		return nil
	}
	if img.UserID != currentUser(c) {
		message(c, http.StatusForbidden, "This action is unauthorized.")
		return nil
	}
	return img
}

func storedPath(dir string, id int64, fh *multipart.FileHeader) string {
	return dir + "/" + strconv.FormatInt(id, 10) + "-" + fh.Filename
}

func (s *Server) createImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		invalid(c, "image", "The image field is required.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := artai.Time{Time: s.now()}
	img := &artai.Image{
		ID:        s.idLocked(),
		UserID:    currentUser(c),
		Title:     c.PostForm("title"),
		IsPublic:  c.PostForm("is_public") == "1",
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	img.FilePath = storedPath("images", img.ID, fh)
	if v, ok := c.GetPostForm("description"); ok {
		img.Description = &v
	}
	if v, ok := c.GetPostForm("status"); ok {
		img.Status = &v
	}
	if v, ok := c.GetPostForm("category_id"); ok {
		if !s.setCategoryLocked(c, img, v) {
			return
		}
	}
	s.images[img.ID] = img
	c.JSON(http.StatusCreated, gin.H{"message": "Image uploaded", "image": img, "url": "/" + img.FilePath})
}

func (s *Server) setCategoryLocked(c *gin.Context, img *artai.Image, v string) bool {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || !s.categoryExistsLocked(id) {
		invalid(c, "category_id", "The selected category id is invalid.")
		return false
	}
	img.CategoryID = &id
	return true
}

func (s *Server) categoryExistsLocked(id int64) bool {
	for _, cat := range s.categories {
		if cat.ID == id {
			return true
		}
	}
	return false
}

func (s *Server) updateImage(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.ownImageLocked(c)
	if img == nil {
		return
	}
	next := *img

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if fh, err := c.FormFile("image"); err == nil {
			next.FilePath = storedPath("images", next.ID, fh)
		}
		if v, ok := c.GetPostForm("title"); ok {
			next.Title = v
		}
		if v, ok := c.GetPostForm("description"); ok {
			next.Description = &v
		}
		if v, ok := c.GetPostForm("status"); ok {
			next.Status = &v
		}
		if v, ok := c.GetPostForm("is_public"); ok {
			next.IsPublic = v == "1"
		}
		if v, ok := c.GetPostForm("category_id"); ok {
			if !s.setCategoryLocked(c, &next, v) {
				return
			}
		}
	} else {
		var in map[string]json.RawMessage
		if err := c.ShouldBindJSON(&in); err != nil {
			invalid(c, "title", "The given data was invalid.")
			return
		}
		if v, ok := in["title"]; ok {
			json.Unmarshal(v, &next.Title)
		}
		if v, ok := in["description"]; ok {
			next.Description = nil
			json.Unmarshal(v, &next.Description)
		}
		if v, ok := in["status"]; ok {
			next.Status = nil
			json.Unmarshal(v, &next.Status)
		}
		if v, ok := in["is_public"]; ok {
			json.Unmarshal(v, &next.IsPublic)
		}
		if v, ok := in["category_id"]; ok {
			if string(v) == "null" {
				next.CategoryID = nil
			} else if !s.setCategoryLocked(c, &next, string(v)) {
				return
			}
		}
	}

	now := artai.Time{Time: s.now()}
	next.UpdatedAt = &now
	*img = next
	c.JSON(http.StatusOK, gin.H{"message": "Image updated", "image": img, "url": "/" + img.FilePath})
}

func (s *Server) deleteImage(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.ownImageLocked(c)
	if img == nil {
		return
	}
	delete(s.images, img.ID)
	delete(s.history, img.ID)
	delete(s.imageCats, img.ID)
	delete(s.likes, img.ID)
	message(c, http.StatusOK, "Image deleted")
}

func (s *Server) existingImageLocked(c *gin.Context) (int64, bool) {
	id, ok := pathID(c)
	if !ok {
		return 0, false
	}
	if _, ok := s.images[id]; !ok {
		message(c, http.StatusNotFound, "Image not found")
		return 0, false
	}
	return id, true
}

func (s *Server) getHistory(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.existingImageLocked(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, append([]artai.ImageHistory{}, s.history[id]...))
}

func (s *Server) addHistory(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.existingImageLocked(c)
	if !ok {
		return
	}
	now := artai.Time{Time: s.now()}
	h := artai.ImageHistory{
		ID:        s.idLocked(),
		ImageID:   id,
		UserID:    currentUser(c),
		Action:    c.DefaultPostForm("action", "edit"),
		CreatedAt: &now,
	}
	if fh, err := c.FormFile("file"); err == nil {
		p := storedPath("history", h.ID, fh)
		h.FilePath = &p
	}
	s.history[id] = append(s.history[id], h)
	c.JSON(http.StatusCreated, gin.H{"message": "History recorded", "history": h})
}

// Categories and tags

func (s *Server) listCategories(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, append([]artai.Category{}, s.categories...))
}

func (s *Server) createCategory(c *gin.Context) {
	var in struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		invalid(c, "name", "The name field is required.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cat := range s.categories {
		if strings.EqualFold(cat.Name, in.Name) {
			invalid(c, "name", "The name has already been taken.")
			return
		}
	}
	cat := artai.Category{ID: s.idLocked(), Name: in.Name, Description: in.Description}
	s.categories = append(s.categories, cat)
	c.JSON(http.StatusCreated, gin.H{"message": "Category created", "category": cat})
}

func (s *Server) listTags(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, append([]artai.Tag{}, s.tags...))
}

func (s *Server) createTag(c *gin.Context) {
	var in struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		invalid(c, "name", "The name field is required.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tag := artai.Tag{ID: s.idLocked(), Name: in.Name}
	s.tags = append(s.tags, tag)
	c.JSON(http.StatusCreated, gin.H{"message": "Tag created", "tag": tag})
}

func (s *Server) imageCategoriesLocked(id int64) artai.ImageCategories {
	out := artai.ImageCategories{ImageID: id, Categories: []artai.Category{}}
	for _, cid := range s.imageCats[id] {
		for _, cat := range s.categories {
			if cat.ID == cid {
				out.Categories = append(out.Categories, cat)
			}
		}
	}
	n := len(out.Categories)
	out.Count = &n
	return out
}

func (s *Server) getImageCategories(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.existingImageLocked(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.imageCategoriesLocked(id))
}

// setImageCategories accepts {"category_ids": [..]} or the string form
// {"categories": "3,5"} and replaces the whole set. Sets are stored in id
// order.
func (s *Server) setImageCategories(c *gin.Context) {
	var in struct {
		CategoryIDs *[]int64 `json:"category_ids"`
		Categories  *string  `json:"categories"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		invalid(c, "category_ids", "The category ids field must be an array.")
		return
	}

	var ids []int64
	switch {
	case in.CategoryIDs != nil:
		ids = *in.CategoryIDs
	case in.Categories != nil:
		for _, part := range strings.Split(*in.Categories, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				invalid(c, "categories", "The categories field must be a list of ids.")
				return
			}
			ids = append(ids, id)
		}
	default:
		invalid(c, "category_ids", "The category ids field is required.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.ownImageLocked(c)
	if img == nil {
		return
	}
	for _, id := range ids {
		if !s.categoryExistsLocked(id) {
			invalid(c, "category_ids", "The selected category ids is invalid.")
			return
		}
	}
	set := artai.NormalizeCategorySet(ids)
	slices.Sort(set)
	s.imageCats[img.ID] = set
	c.JSON(http.StatusOK, s.imageCategoriesLocked(img.ID))
}

// Likes

func (s *Server) like(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.existingImageLocked(c)
	if !ok {
		return
	}
	if s.likes[id] == nil {
		s.likes[id] = make(map[int64]bool)
	}
	s.likes[id][currentUser(c)] = true
	message(c, http.StatusOK, "Image liked")
}

func (s *Server) unlike(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.existingImageLocked(c)
	if !ok {
		return
	}
	delete(s.likes[id], currentUser(c))
	message(c, http.StatusOK, "Image unliked")
}

func (s *Server) getLikes(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.existingImageLocked(c)
	if !ok {
		return
	}
	info := artai.LikeInfo{Users: []artai.LikeUser{}}
	for uid := range s.likes[id] {
		lu := artai.LikeUser{}
		if a, ok := s.users[uid]; ok {
			likerID, name := a.ID, a.Username
			lu.ID, lu.Username = &likerID, &name
		}
		info.Users = append(info.Users, lu)
	}
	info.Count = len(info.Users)
	c.JSON(http.StatusOK, info)
}

// References and sessions

func (s *Server) listReferences(c *gin.Context) {
	userID, hasUser := queryInt(c, "user_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []artai.ReferenceImage
	for _, r := range s.refs {
		if hasUser && r.UserID != userID {
			continue
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, paginate(out, page(c), s.perPage))
}

func (s *Server) createReference(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		invalid(c, "image", "The image field is required.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := artai.Time{Time: s.now()}
	ref := artai.ReferenceImage{ID: s.idLocked(), UserID: currentUser(c), CreatedAt: &now}
	ref.FilePath = storedPath("references", ref.ID, fh)
	if v, ok := c.GetPostForm("description"); ok {
		ref.Description = &v
	}
	s.refs = append(s.refs, ref)
	c.JSON(http.StatusCreated, gin.H{"message": "Reference image uploaded", "reference": ref})
}

func (s *Server) listSessions(c *gin.Context) {
	userID, hasUser := queryInt(c, "user_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []artai.SessionRecord
	for _, r := range s.sessions {
		if hasUser && r.UserID != userID {
			continue
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, paginate(out, page(c), s.perPage))
}

func (s *Server) deleteSession(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.sessions {
		if r.ID != id {
			continue
		}
		if r.UserID != currentUser(c) {
			message(c, http.StatusForbidden, "This action is unauthorized.")
			return
		}
		s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
		message(c, http.StatusOK, "Session deleted")
		return
	}
	message(c, http.StatusNotFound, "Session not found")
}

// Generation

func (s *Server) generate(c *gin.Context) {
	prompt := c.PostForm("prompt")
	_, refErr := c.FormFile("reference")
	_, imgErr := c.FormFile("image")
	if prompt == "" && refErr != nil && imgErr != nil {
		invalid(c, "prompt", "A prompt or an image is required.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := artai.Time{Time: s.now()}
	img := &artai.Image{
		ID:        s.idLocked(),
		UserID:    currentUser(c),
		Title:     c.DefaultPostForm("title", prompt),
		IsPublic:  c.PostForm("is_public") == "1",
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	img.FilePath = "generated/" + strconv.FormatInt(img.ID, 10) + ".png"
	if v, ok := c.GetPostForm("category_id"); ok {
		if !s.setCategoryLocked(c, img, v) {
			return
		}
	}
	s.images[img.ID] = img
	c.JSON(http.StatusCreated, gin.H{"message": "Image generated", "image": img, "url": "/" + img.FilePath})
}

func (s *Server) edit(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		invalid(c, "image", "The image field is required.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.ownImageLocked(c)
	if img == nil {
		return
	}
	img.FilePath = storedPath("edited", img.ID, fh)
	now := artai.Time{Time: s.now()}
	img.UpdatedAt = &now
	p := img.FilePath
	s.history[img.ID] = append(s.history[img.ID], artai.ImageHistory{
		ID:        s.idLocked(),
		ImageID:   img.ID,
		UserID:    currentUser(c),
		Action:    "edit",
		FilePath:  &p,
		CreatedAt: &now,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Image edited", "image": img, "url": "/" + img.FilePath})
}
