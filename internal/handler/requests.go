package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/service"
)

// RequestHandler takes requests for new tables.
type RequestHandler struct {
	requests *service.TableRequests
	log      *zap.Logger
}

func NewRequestHandler(requests *service.TableRequests, log *zap.Logger) *RequestHandler {
	return &RequestHandler{requests: requests, log: log}
}

type tableRequestBody struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Day          string `json:"day"`
	Time         string `json:"time"`
	Neighborhood string `json:"neighborhood"`
	AgeRange     string `json:"ageRange"`
	Theme        string `json:"theme"`
}

// Create handles POST /v1/table-requests on behalf of the caller.
func (h *RequestHandler) Create(c echo.Context) error {
	var body tableRequestBody
	if err := bind(c, &body); err != nil {
		return respondError(c, h.log, err)
	}
	uid, err := actingUser(c, 0)
	if err != nil {
		return respondError(c, h.log, err)
	}
	err = h.requests.Submit(c.Request().Context(), model.TableRequest{
		UserID:       uid,
		Name:         body.Name,
		Phone:        body.Phone,
		Day:          body.Day,
		Time:         body.Time,
		Neighborhood: body.Neighborhood,
		AgeRange:     body.AgeRange,
		Theme:        body.Theme,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, success)
}
