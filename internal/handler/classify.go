package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/psds-microservice/support-ticket-service/internal/classifier"
)

// Classifier is satisfied by *classifier.Classifier.
type Classifier interface {
	Classify(ctx context.Context, description string) *classifier.Suggestion
}

type ClassifyHandler struct {
	classifier Classifier
}

func NewClassifyHandler(c Classifier) *ClassifyHandler {
	return &ClassifyHandler{classifier: c}
}

type ClassifyResponse struct {
	SuggestedCategory *string `json:"suggested_category"`
	SuggestedPriority *string `json:"suggested_priority"`
	Error             string  `json:"error,omitempty"`
}

// UnavailableResponse is the 200 body returned when no suggestion exists.
func UnavailableResponse() ClassifyResponse {
	return ClassifyResponse{Error: classifier.UnavailableMessage}
}

// SuggestionResponse builds the 200 body for a suggestion (nil -> unavailable).
func SuggestionResponse(s *classifier.Suggestion) ClassifyResponse {
	if s == nil {
		return UnavailableResponse()
	}
	cat, pri := string(s.Category), string(s.Priority)
	return ClassifyResponse{SuggestedCategory: &cat, SuggestedPriority: &pri}
}

// Classify: POST /api/tickets/classify {"description": "..."}.
// Provider failures are not errors for the client: the response is 200 with nulls.
func (h *ClassifyHandler) Classify(c *gin.Context) {
	body, ok := bindObject(c)
	if !ok {
		return
	}
	errs := fieldErrors{}
	desc := textField(body, "description", 0, false, errs)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errs)
		return
	}
	c.JSON(http.StatusOK, SuggestionResponse(h.classifier.Classify(c.Request.Context(), *desc)))
}
