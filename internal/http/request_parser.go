package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"fintrack/internal/core"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 20
)

var validate = newValidator()

var nonBlank = regexp.MustCompile(`\S`)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return nonBlank.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := parseDay(fl.Field().String(), time.UTC)
		return err == nil
	})
	return v
}

type (
	// Name length is checked by core after trimming.
	createCategoryRequest struct {
		Name   string      `json:"name" validate:"required,notblank"`
		Budget *core.Money `json:"budget"`
	}

	updateCategoryRequest struct {
		Name   *string     `json:"name" validate:"omitempty,notblank"`
		Budget *core.Money `json:"budget"`
	}

	createIncomeRequest struct {
		Amount      core.Money `json:"amount"`
		Date        string     `json:"date" validate:"required,isodate"`
		Source      string     `json:"source" validate:"required,notblank,max=100"`
		Description string     `json:"description" validate:"max=500"`
	}

	createExpenseRequest struct {
		Amount      core.Money `json:"amount"`
		Date        string     `json:"date" validate:"required,isodate"`
		CategoryID  string     `json:"categoryId" validate:"required,notblank"`
		Kind        string     `json:"kind" validate:"omitempty,oneof=one_time recurring"`
		Description string     `json:"description" validate:"max=500"`
	}
)

// requestError is a malformed request. It maps to 400 when the body cannot
// be decoded and to 422 when a field fails validation.
type requestError struct {
	status int
	field  string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// decodeJSON reads a single JSON object into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			return &requestError{status: http.StatusUnprocessableEntity, msg: err.Error()}
		}
		return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &requestError{
				status: http.StatusUnprocessableEntity,
				field:  verrs[0].Field(),
				msg:    fieldErrorToString(verrs[0]),
			}
		}
		return err
	}
	return nil
}

func fieldErrorToString(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", e.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
	case "isodate":
		return fmt.Sprintf("%s must be a YYYY-MM-DD date or an RFC 3339 timestamp", e.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}

// parseLocation resolves the tz query parameter, falling back to def.
func parseLocation(r *http.Request, def *time.Location) (*time.Location, error) {
	tz := strings.TrimSpace(r.URL.Query().Get("tz"))
	if tz == "" {
		return def, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil || strings.EqualFold(tz, "local") {
		return nil, core.Invalid("tz", fmt.Errorf("unknown time zone %q", tz))
	}
	return loc, nil
}

// parseWindow reads from/to (YYYY-MM-DD, both inclusive) in loc. Neither
// means no window; only one of them is a validation error.
func parseWindow(r *http.Request, loc *time.Location) (*core.Window, error) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, core.Invalid("window", core.ErrInvalidWindow)
	}

	start, err := time.ParseInLocation(dateLayout, from, loc)
	if err != nil {
		return nil, core.Invalid("from", core.ErrInvalidDate)
	}
	last, err := time.ParseInLocation(dateLayout, to, loc)
	if err != nil {
		return nil, core.Invalid("to", core.ErrInvalidDate)
	}
	w, err := core.NewWindow(start, last.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// parseDay accepts an RFC 3339 timestamp or a bare date, which is taken as
// midnight in loc.
func parseDay(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, core.Invalid("date", core.ErrInvalidDate)
	}
	return t, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
