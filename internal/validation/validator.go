// Package validation checks hosts and container requests before they reach
// storage or an engine.
//
// It uses go-playground/validator for the struct tags declared on the
// models plus Dockyard specific business rules:
//   - nohostpath: a host's address is a host name or IP, never a URL or path
//   - container requests need an image, sane ports and a non-negative memory
//
// # Usage Example
//
//	v := validation.New()
//	result := v.ValidateHost(host)
//	if !result.Valid {
//	    for _, err := range result.Errors {
//	        fmt.Printf("%s: %s\n", err.Field, err.Message)
//	    }
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/models"
)

// Validator validates Dockyard models.
type Validator struct {
	// structValidator validates Go struct constraints and tags
	structValidator *validator.Validate
}

// ValidationError represents a single validation error with field-level details.
type ValidationError struct {
	// Field is the JSON name of the field that failed validation
	Field string `json:"field"`

	// Message describes why the validation failed
	Message string `json:"message"`

	// Value is the invalid value that caused the error (optional)
	Value interface{} `json:"value,omitempty"`
}

// ValidationResult represents the complete result of a validation operation.
type ValidationResult struct {
	// Valid is true if validation passed, false otherwise
	Valid bool `json:"valid"`

	// Errors contains all validation errors found (empty if Valid is true)
	Errors []ValidationError `json:"errors,omitempty"`
}

// Error joins every field error into one message.
func (r *ValidationResult) Error() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func result(errs []ValidationError) *ValidationResult {
	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// New creates a Validator with the Dockyard rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json field names instead of Go names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("nohostpath", noHostPath)

	return &Validator{structValidator: v}
}

// noHostPath rejects addresses carrying a scheme or path.
func noHostPath(fl validator.FieldLevel) bool {
	return !strings.Contains(fl.Field().String(), "/")
}

// ValidateStruct checks the validate tags of s.
func (v *Validator) ValidateStruct(s interface{}) *ValidationResult {
	return result(v.structErrors(s))
}

func (v *Validator) structErrors(s interface{}) []ValidationError {
	err := v.structValidator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Field: "document", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: message(fe),
			Value:   fe.Value(),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "excludesall":
		return fmt.Sprintf("must not contain any of %q", fe.Param())
	case "nohostpath":
		return "must be a host name or IP address without scheme or path"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

// ValidateHost validates a host before it is stored.
func (v *Validator) ValidateHost(host *models.Host) *ValidationResult {
	errs := v.structErrors(host)

	if strings.TrimSpace(host.Name) != host.Name {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "must not start or end with whitespace",
			Value:   host.Name,
		})
	}
	if strings.ContainsAny(host.Hostname, " \t") {
		errs = append(errs, ValidationError{
			Field:   "hostname",
			Message: "must not contain whitespace",
			Value:   host.Hostname,
		})
	}

	return result(errs)
}

var validProtocols = map[string]bool{"tcp": true, "udp": true, "sctp": true}

// ValidateCreateOptions validates a container request before it is sent to
// an engine.
func (v *Validator) ValidateCreateOptions(opts engine.CreateOptions) *ValidationResult {
	var errs []ValidationError

	if strings.TrimSpace(opts.Image) == "" {
		errs = append(errs, ValidationError{
			Field:   "image",
			Message: "is required",
		})
	}

	if opts.MemoryBytes < 0 {
		errs = append(errs, ValidationError{
			Field:   "memory",
			Message: "cannot be negative",
			Value:   opts.MemoryBytes,
		})
	}

	for i, spec := range opts.Ports {
		if msg := checkPort(spec); msg != "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("ports[%d]", i),
				Message: msg,
				Value:   spec,
			})
		}
	}

	for i, vol := range opts.Volumes {
		if !strings.HasPrefix(vol, "/") {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("volumes[%d]", i),
				Message: "must be an absolute container path",
				Value:   vol,
			})
		}
	}

	return result(errs)
}

// checkPort accepts "port" or "port/proto".
func checkPort(spec string) string {
	port, proto, hasProto := strings.Cut(spec, "/")
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "port must be between 1 and 65535"
	}
	if hasProto && !validProtocols[strings.ToLower(proto)] {
		return "protocol must be 'tcp', 'udp', or 'sctp'"
	}
	return ""
}
