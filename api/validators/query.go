package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
)

// IntParam is an optional integer query parameter bounded to [Min, Max].
// With Clamp set, out-of-range values are pulled back into range instead of
// rejected; non-numeric input is always a validation error.
type IntParam struct {
	Key     string
	Default int
	Min     int
	Max     int
	Clamp   bool
}

func (p IntParam) Parse(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(p.Key))
	if raw == "" {
		return p.Default, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, p.invalid("query parameter must be numeric")
	}
	if value >= p.Min && value <= p.Max {
		return value, nil
	}
	if !p.Clamp {
		return 0, p.invalid("query parameter out of range")
	}
	return min(max(value, p.Min), p.Max), nil
}

func (p IntParam) invalid(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{
		"field": p.Key,
		"min":   p.Min,
		"max":   p.Max,
	})
}
