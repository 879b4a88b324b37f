package artai

import (
	"context"

	"golang.org/x/oauth2"
)

// AuthAPI is the part of the resource client the session manager needs.
type AuthAPI interface {
	Login(ctx context.Context, ident, password string) (*AuthResult, error)
	Register(ctx context.Context, username, email, password string) (*AuthResult, error)
	Logout(ctx context.Context) (*Message, error)
	GetUser(ctx context.Context) (*User, error)
	// UpdateUser returns the replaced user and the new token when the server
	// rotated it ("" otherwise).
	UpdateUser(ctx context.Context, patch ProfilePatch) (*User, string, error)
}

// ResourceAPI covers every non-auth endpoint of the Artai API.
type ResourceAPI interface {
	ListImages(ctx context.Context, q ImageQuery) (*Paginated[Image], error)
	GetImage(ctx context.Context, id int64) (*Image, error)
	CreateImage(ctx context.Context, in NewImage) (*ImageResult, error)
	UpdateImage(ctx context.Context, id int64, patch ImagePatch) (*ImageResult, error)
	DeleteImage(ctx context.Context, id int64) (*Message, error)

	GetImageHistory(ctx context.Context, id int64) ([]ImageHistory, error)
	AddImageHistory(ctx context.Context, id int64, in HistoryEntry) (*ImageHistory, error)

	GetCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name, description string) (*Category, error)
	GetTags(ctx context.Context) ([]Tag, error)
	CreateTag(ctx context.Context, name string) (*Tag, error)

	GetImageCategories(ctx context.Context, imageID int64) (*ImageCategories, error)
	SetImageCategories(ctx context.Context, imageID int64, categoryIDs []int64) (*ImageCategories, error)
	SetImageCategoriesCSV(ctx context.Context, imageID int64, csv string) (*ImageCategories, error)

	LikeImage(ctx context.Context, id int64) (*Message, error)
	UnlikeImage(ctx context.Context, id int64) (*Message, error)
	GetImageLikes(ctx context.Context, id int64) (*LikeInfo, error)

	ListReferenceImages(ctx context.Context, q PageQuery) (*Paginated[ReferenceImage], error)
	CreateReferenceImage(ctx context.Context, file Upload, description string) (*ReferenceImage, error)

	ListSessions(ctx context.Context, q PageQuery) (*Paginated[SessionRecord], error)
	DeleteSession(ctx context.Context, id int64) (*Message, error)

	Generate(ctx context.Context, in GenerateRequest) (*ImageResult, error)
	EditImage(ctx context.Context, id int64, file Upload) (*ImageResult, error)
}

// TokenSource is how the resource client obtains the bearer token and
// reports that the server rejected it. SessionManager implements it.
type TokenSource interface {
	// Token returns the current token, or nil when there is no session.
	Token() *oauth2.Token
	// TokenRejected is called when a request authenticated with token came
	// back as an authentication failure.
	TokenRejected(token string)
}

// TokenStore persists the single session token across process restarts.
type TokenStore interface {
	// Load returns the stored token, or "" when none is stored.
	Load() (string, error)
	Save(token string) error
	Clear() error
}
