package artai

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// PageView is what the gallery shows.
type PageView struct {
	// Key identifies the page and filter currently selected.
	Key Key
	// Page is the page on display. While Pending it may still be the page
	// of a previous selection; it is nil until a first page has loaded.
	Page *Paginated[Image]
	// Pending reports that the selected page is still being fetched.
	Pending bool
	// Err is the error of the last failed fetch of the selected page.
	Err error

	shownKey Key
}

// Stale reports whether Page belongs to an earlier selection.
func (v PageView) Stale() bool {
	return v.Page != nil && v.Pending && v.shownKey != nil && !sameKey(v.shownKey, v.Key)
}

// Gallery is the image browser: a filterable, paginated listing plus the
// category operations offered next to it.
type Gallery struct {
	svc   *Service
	pager *Pager
	base  ImageQuery

	mu       sync.Mutex
	shown    *Paginated[Image]
	shownKey Key
}

// NewGallery creates a gallery over base (Public and UserID are kept; Page
// and CategoryID are driven by the pager).
func NewGallery(svc *Service, base ImageQuery) *Gallery {
	g := &Gallery{svc: svc, pager: NewPager(), base: base}
	g.pager.SetFilter(base.CategoryID)
	g.pager.SetPage(base.Page)
	return g
}

// Pager returns the pagination controller driving the gallery.
func (g *Gallery) Pager() *Pager { return g.pager }

func (g *Gallery) query() ImageQuery {
	q := g.base
	q.Page = g.pager.Page()
	q.CategoryID = g.pager.Filter()
	return q
}

// View returns what to display now without blocking. When the selected page
// is not cached yet its fetch is started and the previously displayed page
// is returned with Pending set.
func (g *Gallery) View(ctx context.Context) PageView {
	q := g.query()
	key := ImagesKey(q)
	page, pending, err := g.svc.ReadImages(ctx, q)

	g.mu.Lock()
	defer g.mu.Unlock()
	if page != nil {
		g.show(key, page)
	}
	return PageView{Key: key, Page: g.shown, Pending: pending, Err: err, shownKey: g.shownKey}
}

// Load fetches the selected page and waits for it. A result that arrives
// after the selection moved on is not displayed; the view of the new
// selection is returned instead.
func (g *Gallery) Load(ctx context.Context) (PageView, error) {
	for attempt := 0; ; attempt++ {
		q := g.query()
		key := ImagesKey(q)
		page, err := g.svc.ListImages(ctx, q)
		if err != nil {
			g.mu.Lock()
			defer g.mu.Unlock()
			return PageView{Key: key, Page: g.shown, Err: err, shownKey: g.shownKey}, err
		}
		if !sameKey(key, ImagesKey(g.query())) {
			return g.View(ctx), nil
		}

		g.mu.Lock()
		g.show(key, page)
		g.mu.Unlock()

		// Observe pulls the page back in range when the collection shrank,
		// which selects a different page than the one just loaded.
		if sameKey(key, ImagesKey(g.query())) || attempt >= maxSupersededRetries {
			return PageView{Key: key, Page: page, shownKey: key}, nil
		}
	}
}

// show records page as displayed. Caller holds g.mu.
func (g *Gallery) show(key Key, page *Paginated[Image]) {
	g.shown = page
	g.shownKey = key
	g.pager.Observe(page.LastPage)
}

// Next, Previous and SetFilter move the selection. Call View or Load after.
func (g *Gallery) Next() bool                  { return g.pager.Next() }
func (g *Gallery) Previous() bool              { return g.pager.Previous() }
func (g *Gallery) SetFilter(categoryID *int64) { g.pager.SetFilter(categoryID) }

// Delete deletes an image; the listing refetches on the next read.
func (g *Gallery) Delete(ctx context.Context, id int64) (*Message, error) {
	return g.svc.DeleteImage(ctx, id)
}

// CreateCategory creates a category and selects it as the filter.
func (g *Gallery) CreateCategory(ctx context.Context, name, description string) (*Category, error) {
	c, err := g.svc.CreateCategory(ctx, name, description)
	if err != nil {
		return nil, err
	}
	id := c.ID
	g.pager.SetFilter(&id)
	return c, nil
}

func (g *Gallery) Categories(ctx context.Context) ([]Category, error) {
	return g.svc.Categories(ctx)
}

func (g *Gallery) Tags(ctx context.Context) ([]Tag, error) {
	return g.svc.Tags(ctx)
}

func (g *Gallery) CreateTag(ctx context.Context, name string) (*Tag, error) {
	return g.svc.CreateTag(ctx, name)
}

func (g *Gallery) ImageCategories(ctx context.Context, imageID int64) (*ImageCategories, error) {
	return g.svc.ImageCategories(ctx, imageID)
}

func (g *Gallery) AddCategory(ctx context.Context, imageID, categoryID int64) (*ImageCategories, error) {
	return g.svc.AddImageCategory(ctx, imageID, categoryID)
}

func (g *Gallery) RemoveCategory(ctx context.Context, imageID, categoryID int64) (*ImageCategories, error) {
	return g.svc.RemoveImageCategory(ctx, imageID, categoryID)
}

// pageCategoryFetches bounds concurrent category requests for one page.
const pageCategoryFetches = 4

// PageCategories returns the category sets of every image on the displayed
// page, keyed by image id.
func (g *Gallery) PageCategories(ctx context.Context) (map[int64][]Category, error) {
	g.mu.Lock()
	shown := g.shown
	g.mu.Unlock()
	if shown == nil {
		return map[int64][]Category{}, nil
	}

	var mu sync.Mutex
	out := make(map[int64][]Category, len(shown.Data))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(pageCategoryFetches)
	for _, img := range shown.Data {
		id := img.ID
		eg.Go(func() error {
			ic, err := g.svc.ImageCategories(ctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = ic.Categories
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func sameKey(a, b Key) bool {
	return len(a) == len(b) && a.HasPrefix(b)
}
