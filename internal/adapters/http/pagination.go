package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination carries offset-based paging info.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// SetLinkHeaders writes RFC 8288 Link relations (first/prev/next/last) for
// the current page onto the response.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	links := []string{pageLink(c.Path(), 0, p.Limit, "first")}

	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		links = append(links, pageLink(c.Path(), prev, p.Limit, "prev"))
	}
	if next := p.Offset + p.Limit; next < p.Total {
		links = append(links, pageLink(c.Path(), next, p.Limit, "next"))
	}

	last := p.Total - p.Limit
	if last < 0 {
		last = 0
	}
	links = append(links, pageLink(c.Path(), last, p.Limit, "last"))

	c.Set("Link", strings.Join(links, ", "))
}

func pageLink(path string, offset, limit int, rel string) string {
	return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel=%q`, path, offset, limit, rel)
}
