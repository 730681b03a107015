package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/pagination"
)

// pageQuery mirrors the listing query string so bounds live in tags.
type pageQuery struct {
	Limit  int    `json:"limit" validate:"min=1,max=100"`
	Cursor string `json:"cursor" validate:"max=512"`
}

// ParsePagination reads ?limit and ?cursor. A missing limit falls back to
// pagination.DefaultLimit; a cursor must decode before it reaches a query.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	values := r.URL.Query()
	q := pageQuery{
		Limit:  pagination.DefaultLimit,
		Cursor: strings.TrimSpace(values.Get("cursor")),
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return pagination.Params{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid query").
				WithDetails(map[string]string{"limit": "must be an integer"})
		}
		q.Limit = n
	}
	if err := validate.Struct(q); err != nil {
		return pagination.Params{}, fieldErrors(err)
	}
	if _, err := pagination.ParseCursor(q.Cursor); err != nil {
		return pagination.Params{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid query").
			WithDetails(map[string]string{"cursor": "malformed cursor"})
	}
	return pagination.Params{Limit: q.Limit, Cursor: q.Cursor}, nil
}
