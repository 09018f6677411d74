package dto

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

// BodyField is the field name reported when the request body itself
// cannot be decoded.
const BodyField = "body"

// Validatable is implemented by payloads that check their own shape and
// report failures as *domain.ValidationError.
type Validatable interface {
	Validate() error
}

// BindAndValidate decodes the JSON body into v and validates it.
// Malformed JSON is reported as a validation error on BodyField; a body over
// the server limit as a 413 *domain.RequestError.
func BindAndValidate(c *gin.Context, v Validatable) error {
	if err := c.ShouldBindJSON(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.NewRequestError(http.StatusRequestEntityTooLarge, "Request body too large")
		}

		return domain.NewValidationError(BodyField, "must be a valid JSON document")
	}

	return v.Validate()
}
