package echoapi

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/plagiat/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses the `ordering` query param (`field,-field`); only allowed fields are accepted.
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) error {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !contains(allowed, field) {
			return core.NewValidationError(nil, core.FieldError{
				Field: orderingParam,
				Error: fmt.Sprintf("cannot order by %q", field),
			})
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return nil
}

// DestroyMultipleRequest lists the IDs of the objects to delete: `?id=..&id=..`
type DestroyMultipleRequest struct {
	IDs []string `query:"id"`
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
