package artai

import (
	"context"
	"fmt"
)

// Service puts the cache in front of a ResourceAPI. Reads go through the
// cache; each mutation, once it succeeds, invalidates the keys it affects.
type Service struct {
	api    ResourceAPI
	cache  *Cache
	stale  StaleTimes
	logger Logger
}

// NewService creates a Service. logger may be nil.
func NewService(api ResourceAPI, cache *Cache, stale StaleTimes, logger Logger) *Service {
	return &Service{api: api, cache: cache, stale: stale, logger: orNop(logger)}
}

// Cache returns the cache the service reads through.
func (s *Service) Cache() *Cache { return s.cache }

func (s *Service) invalidate(op string, keys ...Key) {
	n := s.cache.Invalidate(keys...)
	s.logger.Debug("invalidated after mutation", "op", op, "entries", n)
}

func (s *Service) fetchImages(q ImageQuery) func(context.Context) (*Paginated[Image], error) {
	return func(ctx context.Context) (*Paginated[Image], error) {
		page, err := s.api.ListImages(ctx, q)
		if err != nil {
			return nil, err
		}
		page.Clamp()
		return page, nil
	}
}

// ListImages returns one page of images.
func (s *Service) ListImages(ctx context.Context, q ImageQuery) (*Paginated[Image], error) {
	q.Page = normalPage(q.Page)
	return Fetch(ctx, s.cache, ImagesKey(q), s.stale.Images, s.fetchImages(q))
}

// ReadImages is the non-blocking form of ListImages. page is whatever the
// cache holds for q (nil if nothing yet) and pending reports a fetch in flight.
func (s *Service) ReadImages(ctx context.Context, q ImageQuery) (page *Paginated[Image], pending bool, err error) {
	q.Page = normalPage(q.Page)
	fetch := s.fetchImages(q)
	snap := s.cache.Read(ctx, ImagesKey(q), s.stale.Images, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if snap.Found {
		p, ok := snap.Value.(*Paginated[Image])
		if !ok {
			return nil, snap.Pending, fmt.Errorf("cache key %s holds %T", ImagesKey(q), snap.Value)
		}
		page = p
	}
	return page, snap.Pending, snap.Err
}

func (s *Service) GetImage(ctx context.Context, id int64) (*Image, error) {
	return Fetch(ctx, s.cache, ImageKey(id), s.stale.Image, func(ctx context.Context) (*Image, error) {
		return s.api.GetImage(ctx, id)
	})
}

func (s *Service) CreateImage(ctx context.Context, in NewImage) (*ImageResult, error) {
	res, err := s.api.CreateImage(ctx, in)
	if err != nil {
		return nil, err
	}
	s.invalidate("create image", NewKey(FamilyImages))
	return res, nil
}

func (s *Service) UpdateImage(ctx context.Context, id int64, patch ImagePatch) (*ImageResult, error) {
	res, err := s.api.UpdateImage(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate("update image", NewKey(FamilyImages), ImageKey(id))
	return res, nil
}

// DeleteImage deletes an image. Every cached listing is invalidated, fresh or
// not, so a deleted image never reappears.
func (s *Service) DeleteImage(ctx context.Context, id int64) (*Message, error) {
	res, err := s.api.DeleteImage(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate("delete image", NewKey(FamilyImages), ImageKey(id))
	return res, nil
}

func (s *Service) ImageHistory(ctx context.Context, id int64) ([]ImageHistory, error) {
	return Fetch(ctx, s.cache, ImageHistoryKey(id), s.stale.ImageHistory, func(ctx context.Context) ([]ImageHistory, error) {
		return s.api.GetImageHistory(ctx, id)
	})
}

func (s *Service) AddImageHistory(ctx context.Context, id int64, in HistoryEntry) (*ImageHistory, error) {
	res, err := s.api.AddImageHistory(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.invalidate("add history", ImageHistoryKey(id))
	return res, nil
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return Fetch(ctx, s.cache, CategoriesKey(), s.stale.Categories, s.api.GetCategories)
}

func (s *Service) CreateCategory(ctx context.Context, name, description string) (*Category, error) {
	res, err := s.api.CreateCategory(ctx, name, description)
	if err != nil {
		return nil, err
	}
	s.invalidate("create category", CategoriesKey())
	return res, nil
}

func (s *Service) Tags(ctx context.Context) ([]Tag, error) {
	return Fetch(ctx, s.cache, TagsKey(), s.stale.Tags, s.api.GetTags)
}

func (s *Service) CreateTag(ctx context.Context, name string) (*Tag, error) {
	res, err := s.api.CreateTag(ctx, name)
	if err != nil {
		return nil, err
	}
	s.invalidate("create tag", TagsKey())
	return res, nil
}

// ImageCategories returns the category set assigned to an image.
func (s *Service) ImageCategories(ctx context.Context, imageID int64) (*ImageCategories, error) {
	return Fetch(ctx, s.cache, ImageCategoriesKey(imageID), s.stale.ImageCategories, func(ctx context.Context) (*ImageCategories, error) {
		return s.api.GetImageCategories(ctx, imageID)
	})
}

// SetImageCategories replaces the image's category set with ids, deduplicated.
// Only that image's category entry is invalidated.
func (s *Service) SetImageCategories(ctx context.Context, imageID int64, ids []int64) (*ImageCategories, error) {
	res, err := s.api.SetImageCategories(ctx, imageID, NormalizeCategorySet(ids))
	if err != nil {
		return nil, err
	}
	s.invalidate("set image categories", ImageCategoriesKey(imageID))
	return res, nil
}

// SetImageCategoriesCSV replaces an image's categories with a comma-separated
// id list such as "3, 5,8", sent in the server's string form.
func (s *Service) SetImageCategoriesCSV(ctx context.Context, imageID int64, csv string) (*ImageCategories, error) {
	res, err := s.api.SetImageCategoriesCSV(ctx, imageID, csv)
	if err != nil {
		return nil, err
	}
	s.invalidate("set image categories", ImageCategoriesKey(imageID))
	return res, nil
}

// AddImageCategory assigns one more category to an image by sending the
// full resulting set. Adding an assigned category sends nothing.
func (s *Service) AddImageCategory(ctx context.Context, imageID, categoryID int64) (*ImageCategories, error) {
	return s.reconcile(ctx, imageID, func(current []int64) []int64 {
		return AddCategory(current, categoryID)
	})
}

// RemoveImageCategory unassigns one category by sending the full resulting set.
func (s *Service) RemoveImageCategory(ctx context.Context, imageID, categoryID int64) (*ImageCategories, error) {
	return s.reconcile(ctx, imageID, func(current []int64) []int64 {
		return RemoveCategory(current, categoryID)
	})
}

func (s *Service) reconcile(ctx context.Context, imageID int64, next func([]int64) []int64) (*ImageCategories, error) {
	current, err := s.ImageCategories(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("reading categories of image %d: %w", imageID, err)
	}
	want := next(current.IDs())
	if SameCategorySet(current.IDs(), want) {
		return current, nil
	}
	return s.SetImageCategories(ctx, imageID, want)
}

func (s *Service) Likes(ctx context.Context, imageID int64) (*LikeInfo, error) {
	return Fetch(ctx, s.cache, ImageLikesKey(imageID), s.stale.ImageLikes, func(ctx context.Context) (*LikeInfo, error) {
		return s.api.GetImageLikes(ctx, imageID)
	})
}

func (s *Service) Like(ctx context.Context, imageID int64) (*Message, error) {
	res, err := s.api.LikeImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	s.invalidate("like", ImageLikesKey(imageID))
	return res, nil
}

func (s *Service) Unlike(ctx context.Context, imageID int64) (*Message, error) {
	res, err := s.api.UnlikeImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	s.invalidate("unlike", ImageLikesKey(imageID))
	return res, nil
}

func (s *Service) ReferenceImages(ctx context.Context, q PageQuery) (*Paginated[ReferenceImage], error) {
	q.Page = normalPage(q.Page)
	return Fetch(ctx, s.cache, ReferencesKey(q), s.stale.References, func(ctx context.Context) (*Paginated[ReferenceImage], error) {
		page, err := s.api.ListReferenceImages(ctx, q)
		if err != nil {
			return nil, err
		}
		page.Clamp()
		return page, nil
	})
}

func (s *Service) CreateReferenceImage(ctx context.Context, file Upload, description string) (*ReferenceImage, error) {
	res, err := s.api.CreateReferenceImage(ctx, file, description)
	if err != nil {
		return nil, err
	}
	s.invalidate("create reference image", NewKey(FamilyReferences))
	return res, nil
}

func (s *Service) Sessions(ctx context.Context, q PageQuery) (*Paginated[SessionRecord], error) {
	q.Page = normalPage(q.Page)
	return Fetch(ctx, s.cache, SessionsKey(q), s.stale.Sessions, func(ctx context.Context) (*Paginated[SessionRecord], error) {
		page, err := s.api.ListSessions(ctx, q)
		if err != nil {
			return nil, err
		}
		page.Clamp()
		return page, nil
	})
}

func (s *Service) DeleteSession(ctx context.Context, id int64) (*Message, error) {
	res, err := s.api.DeleteSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate("delete session", NewKey(FamilySessions))
	return res, nil
}

// Generate asks the server for a new image and stores it as one of the
// user's images.
func (s *Service) Generate(ctx context.Context, in GenerateRequest) (*ImageResult, error) {
	res, err := s.api.Generate(ctx, in)
	if err != nil {
		return nil, err
	}
	s.invalidate("generate", NewKey(FamilyImages))
	return res, nil
}

// EditImage replaces the pixels of an image with file.
func (s *Service) EditImage(ctx context.Context, id int64, file Upload) (*ImageResult, error) {
	res, err := s.api.EditImage(ctx, id, file)
	if err != nil {
		return nil, err
	}
	s.invalidate("edit image", NewKey(FamilyImages), ImageKey(id), ImageHistoryKey(id))
	return res, nil
}
