package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/core/scorm/player"
)

var (
	orderingParam = "ordering"
	statusParam   = "status"
	userIDParam   = "user_id"
	limitParam    = "limit"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindSessionFilter reads `status` (repeatable) and `ordering` from the query string.
func bindSessionFilter(ctx echo.Context, packageID string) scorm.SessionFilter {
	filter := scorm.SessionFilter{PackageID: packageID}
	for _, s := range ctx.QueryParams()[statusParam] {
		if s = core.CleanString(s, true); s != "" {
			filter.Status = append(filter.Status, scorm.Status(s))
		}
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	filter.Ordering = ordering.Orderings
	return filter
}

// queryLimit returns the `limit` query param, 0 when absent or invalid.
func queryLimit(ctx echo.Context) int {
	limit, err := strconv.Atoi(ctx.QueryParam(limitParam))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

type (
	// CallRequest is one SCORM API call forwarded by the launch page.
	CallRequest struct {
		Function string   `json:"function" validate:"required"`
		Args     []string `json:"args"`
	}

	CallResponse struct {
		Result    string `json:"result"`
		ErrorCode string `json:"error_code"`
	}

	LaunchResponse struct {
		player.Launch
		LaunchURL string `json:"launch_url"`
	}

	NoticesResponse struct {
		Notices []scorm.Notice `json:"notices"`
	}
)
