package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// RequestError describes a malformed or invalid request body. It is produced
// before any transaction opens and always maps to a 400 response.
type RequestError struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *RequestError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// New returns a configured validator shared across handlers.
func New() *validatorv10.Validate {
	return validatorv10.New(validatorv10.WithRequiredStructEnabled())
}

// DecodeAndValidate decodes the request body into out and validates it.
// Unknown fields are rejected, so advisory client data such as a supplied
// price never reaches a handler.
func DecodeAndValidate(r *http.Request, out any, v *validatorv10.Validate) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(out); err != nil {
		return &RequestError{Message: "invalid request body: " + err.Error()}
	}

	if err := v.Struct(out); err != nil {
		return &RequestError{
			Message: "validation failed",
			Fields:  fieldErrors(err),
		}
	}

	return nil
}

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
		return out
	}
	out["body"] = err.Error()
	return out
}
