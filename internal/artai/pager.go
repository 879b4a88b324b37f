package artai

import "sync"

// Pager tracks the current page and category filter of a paginated listing
// and keeps the page inside [1, LastPage] as last reported by the server.
// The zero value is not usable; call NewPager.
type Pager struct {
	mu       sync.Mutex
	page     int
	lastPage int
	observed bool // lastPage came from a server envelope
	filter   *int64
}

// NewPager starts at page 1 with no filter and one known page.
func NewPager() *Pager {
	return &Pager{page: 1, lastPage: 1}
}

// Page returns the current page.
func (p *Pager) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// LastPage returns the most recently observed last page.
func (p *Pager) LastPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPage
}

// Filter returns the selected category, or nil for all images.
func (p *Pager) Filter() *int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filter == nil {
		return nil
	}
	id := *p.filter
	return &id
}

// SetFilter selects a category (nil for all) and resets to page 1. The page
// boundaries of one filter say nothing about another, so the known last page
// resets too.
func (p *Pager) SetFilter(categoryID *int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if categoryID != nil {
		id := *categoryID
		categoryID = &id
	}
	p.filter = categoryID
	p.page = 1
	p.lastPage = 1
	p.observed = false
}

// Next moves forward one page. At the last page it does nothing and
// returns false.
func (p *Pager) Next() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.page >= p.lastPage {
		return false
	}
	p.page++
	return true
}

// Previous moves back one page. At page 1 it does nothing and returns false.
func (p *Pager) Previous() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.page <= 1 {
		return false
	}
	p.page--
	return true
}

// SetPage jumps to page n, clamped to [1, LastPage]. Before any envelope has
// been observed only the lower bound applies. It returns the page selected.
func (p *Pager) SetPage(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.observed {
		p.page = max(n, 1)
		return p.page
	}
	p.page = clampPage(n, p.lastPage)
	return p.page
}

// Observe records the last page reported by an envelope and pulls the
// current page back in range when the collection shrank.
func (p *Pager) Observe(lastPage int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lastPage < 1 {
		lastPage = 1
	}
	p.lastPage = lastPage
	p.observed = true
	p.page = clampPage(p.page, lastPage)
}

func clampPage(n, last int) int {
	if last < 1 {
		last = 1
	}
	if n < 1 {
		return 1
	}
	if n > last {
		return last
	}
	return n
}
