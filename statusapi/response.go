package statusapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/capsule/errors"
)

// DataResponse is the success envelope.
type DataResponse struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PageSize   int `json:"pageSize,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"totalPages,omitempty"`
}

// respondError derives the status and body from the classified error.
func respondError(c *gin.Context, err error) {
	appErr := errors.From(err, c.Request.URL.Path)
	c.JSON(appErr.HTTPStatus, appErr.ToResponse())
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, DataResponse{Data: data})
}

func respondOKWithMeta(c *gin.Context, data any, meta *Meta) {
	c.JSON(http.StatusOK, DataResponse{Data: data, Meta: meta})
}
