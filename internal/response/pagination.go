package response

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DefaultPageSize   = 15
	MaxPageSize       = 200
	CountQueryTimeout = 5 * time.Second
	DataQueryTimeout  = 3 * time.Second
)

// Pagination represents the pagination details in a response.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse is the standard structure for all paginated API responses.
type PaginatedResponse struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// ParsePageParams reads page/page_size from the query string with clamping.
// defaultPageSize applies when the client passes no usable page_size; a
// non-positive default falls back to DefaultPageSize.
func ParsePageParams(c *gin.Context, defaultPageSize int) (page, pageSize int) {
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Paginate runs a paged query plus a bounded COUNT and returns a standardized
// response. Both queries derive from the caller's context so a disconnected
// client cancels them early. History queries hit the (member_id,
// check_in_time) index, so the COUNT is an index scan; it is still capped to
// avoid blocking on very large tables.
func Paginate(ctx context.Context, query *gorm.DB, page, pageSize int, dest any) (*PaginatedResponse, error) {
	offset := (page - 1) * pageSize

	dataCtx, cancel := context.WithTimeout(ctx, DataQueryTimeout)
	defer cancel()

	dataQuery := query.Session(&gorm.Session{})
	if err := dataQuery.WithContext(dataCtx).Limit(pageSize).Offset(offset).Find(dest).Error; err != nil {
		return nil, err
	}

	var totalItems int64 = -1
	totalPages := -1

	countCtx, cancelCount := context.WithTimeout(ctx, CountQueryTimeout)
	defer cancelCount()

	countQuery := query.Session(&gorm.Session{})
	if err := countQuery.WithContext(countCtx).Count(&totalItems).Error; err != nil {
		logrus.WithError(err).Warn("Pagination COUNT query failed, returning unknown totals")
		totalItems = -1
	} else {
		totalPages = int(math.Ceil(float64(totalItems) / float64(pageSize)))
	}

	return &PaginatedResponse{
		Items: dest,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: totalItems,
			TotalPages: totalPages,
		},
	}, nil
}
