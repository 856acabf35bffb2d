package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"naskahlive/internal/apperror"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Bind decodes the JSON body into v and validates its struct tags. An empty
// body is treated as an empty object. Failures wrap apperror.ErrInvalidInput.
func Bind(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", apperror.ErrInvalidInput)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%s: %w", strings.Join(fields, ", "), apperror.ErrInvalidInput)
		}
		return fmt.Errorf("%v: %w", err, apperror.ErrInvalidInput)
	}
	return nil
}
