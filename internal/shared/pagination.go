package shared

// PageWindow is a normalised page request expressed as an offset window.
type PageWindow struct {
	Page   int
	Size   int
	Offset int
}

// NewPageWindow clamps a raw page and page size to usable values. A size
// outside (0, max] falls back to def; page numbers below 1 become 1.
func NewPageWindow(page, size, def, max int) PageWindow {
	if size <= 0 {
		size = def
	}
	if max > 0 && size > max {
		size = max
	}
	if page <= 0 {
		page = 1
	}
	return PageWindow{Page: page, Size: size, Offset: (page - 1) * size}
}
