package v1

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/helixml/codeframe/infrastructure/api/jsonapi"
	"github.com/helixml/codeframe/infrastructure/api/middleware"
)

// Listing windows.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is the window of a listing selected by ?page= and ?page_size=.
// Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads the listing window. Values that are not positive
// integers are rejected; sizes above MaxPageSize are clamped.
func ParsePage(req *http.Request) (Page, error) {
	p := Page{Number: 1, Size: DefaultPageSize}
	q := req.URL.Query()

	var err error
	if p.Number, err = positiveParam(q, "page", p.Number); err != nil {
		return Page{}, err
	}
	if p.Size, err = positiveParam(q, "page_size", p.Size); err != nil {
		return Page{}, err
	}
	p.Size = min(p.Size, MaxPageSize)
	return p, nil
}

func positiveParam(q url.Values, name string, fallback int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, middleware.BadRequest(name+" must be a positive integer", err)
	}
	return n, nil
}

// Offset returns the rows skipped before the window.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// Limit returns the rows in the window.
func (p Page) Limit() int { return p.Size }

// Pages returns how many windows cover total rows.
func (p Page) Pages(total int64) int {
	if p.Size <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// Describe returns the JSON:API meta and links of the window over total
// rows. Links keep the request's other query parameters.
func (p Page) Describe(req *http.Request, total int64) (*jsonapi.Meta, *jsonapi.Links) {
	pages := p.Pages(total)
	meta := jsonapi.Meta{
		"page":        p.Number,
		"page_size":   p.Size,
		"total_count": total,
		"total_pages": pages,
	}

	at := func(number int) string {
		q := req.URL.Query()
		q.Set("page", strconv.Itoa(number))
		q.Set("page_size", strconv.Itoa(p.Size))
		return req.URL.Path + "?" + q.Encode()
	}
	links := jsonapi.Links{Self: at(p.Number), First: at(1)}
	if pages > 0 {
		links.Last = at(pages)
	}
	if p.Number > 1 {
		links.Prev = at(p.Number - 1)
	}
	if p.Number < pages {
		links.Next = at(p.Number + 1)
	}
	return &meta, &links
}
