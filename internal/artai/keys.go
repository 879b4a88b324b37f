package artai

import (
	"strconv"
	"time"
)

// Key families. Invalidating a family key invalidates every key under it.
const (
	FamilyImages          = "server-images"
	FamilyImage           = "image"
	FamilyImageCategories = "image-categories"
	FamilyImageHistory    = "image-history"
	FamilyImageLikes      = "image-likes"
	FamilyCategories      = "categories"
	FamilyTags            = "tags"
	FamilyReferences      = "reference-images"
	FamilySessions        = "sessions"
)

// ImagesKey is the key of one page of the image listing.
func ImagesKey(q ImageQuery) Key {
	public := "any"
	if q.Public != nil {
		public = strconv.FormatBool(*q.Public)
	}
	return NewKey(FamilyImages, normalPage(q.Page), q.CategoryID, public, q.UserID)
}

func ImageKey(id int64) Key           { return NewKey(FamilyImage, id) }
func ImageCategoriesKey(id int64) Key { return NewKey(FamilyImageCategories, id) }
func ImageHistoryKey(id int64) Key    { return NewKey(FamilyImageHistory, id) }
func ImageLikesKey(id int64) Key      { return NewKey(FamilyImageLikes, id) }
func CategoriesKey() Key              { return NewKey(FamilyCategories) }
func TagsKey() Key                    { return NewKey(FamilyTags) }

func ReferencesKey(q PageQuery) Key {
	return NewKey(FamilyReferences, normalPage(q.Page), q.UserID)
}

func SessionsKey(q PageQuery) Key {
	return NewKey(FamilySessions, normalPage(q.Page), q.UserID)
}

func normalPage(p int) int {
	if p < 1 {
		return 1
	}
	return p
}

// StaleTimes is how long each family is served without refetching.
// Zero means every read refetches, while still deduplicating concurrent
// reads and keeping the previous value visible.
type StaleTimes struct {
	Images          time.Duration
	Image           time.Duration
	Categories      time.Duration
	Tags            time.Duration
	ImageCategories time.Duration
	ImageHistory    time.Duration
	ImageLikes      time.Duration
	References      time.Duration
	Sessions        time.Duration
}

// DefaultStaleTimes returns the freshness windows the web client used.
func DefaultStaleTimes() StaleTimes {
	return StaleTimes{
		Images:          0,
		Image:           30 * time.Second,
		Categories:      10 * time.Minute,
		Tags:            10 * time.Minute,
		ImageCategories: 60 * time.Second,
	}
}
