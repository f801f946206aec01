package utils

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/reject"
)

const (
	pageSizeInvalid  string = "error.request.page-size-invalid"
	pageTokenInvalid string = "error.request.page-token-invalid"

	maxPageSize  = 100
	maxPageToken = math.MaxInt / maxPageSize
)

// PageRequest selects a window of a listing. A zero Size selects everything.
type PageRequest struct {
	Size   int
	Token  int
	Offset int
}

// NewPageRequest reads the optional page_size and page_token query params.
func NewPageRequest(c *gin.Context) (PageRequest, *reject.ProblemWithTrace) {
	pageSize, err := intQuery(c, "page_size")
	if err != nil || pageSize < 0 {
		return PageRequest{}, &reject.ProblemWithTrace{
			Problem: reject.NewProblem().
				WithTitle("Invalid page size").
				WithStatus(http.StatusBadRequest).
				WithCode(pageSizeInvalid).
				Build(),
			Cause: err,
		}
	}

	pageToken, err := intQuery(c, "page_token")
	if err != nil || pageToken < 0 || pageToken > maxPageToken {
		return PageRequest{}, &reject.ProblemWithTrace{
			Problem: reject.NewProblem().
				WithTitle("Invalid page token").
				WithStatus(http.StatusBadRequest).
				WithCode(pageTokenInvalid).
				Build(),
			Cause: err,
		}
	}

	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	return PageRequest{
		Size:   pageSize,
		Token:  pageToken,
		Offset: pageSize * pageToken,
	}, nil
}

// Window returns the [start, end) bounds of the page within total items and
// the token of the following page, or zero when this is the last one.
func (p PageRequest) Window(total int) (start, end, next int) {
	if p.Size == 0 {
		return 0, total, 0
	}
	start = min(max(p.Offset, 0), total)
	if p.Size >= total-start {
		return start, total, 0
	}
	return start, start + p.Size, p.Token + 1
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
