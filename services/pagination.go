package services

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Page selects a window of a listing. Zero values mean the defaults.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page into range
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// TotalPages returns how many pages of size p.Limit hold total rows
func (p Page) TotalPages(total int64) int {
	n := p.Normalize()
	return int((total + int64(n.Limit) - 1) / int64(n.Limit))
}
