package config

import (
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ifnameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._:-]{0,14}$`)

// ValidationError represents a single validation failure with context.
type ValidationError struct {
	FieldPath string
	Message   string
}

// ValidationErrors aggregates every failure found in one pass, so a
// misconfigured file reports all of its problems at once instead of one
// error per Load call.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("bindaddr", validateBindAddr); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("ifname", validateIfname); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateBindAddr(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, _, err := net.SplitHostPort(value)
	return err == nil
}

func validateIfname(fl validator.FieldLevel) bool {
	return ifnameRe.MatchString(fl.Field().String())
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "gte":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "bindaddr":
		return "must be a valid host:port address"
	case "ifname":
		return "must be a valid Linux interface name"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// Validate checks the configuration against its struct tags, aggregating
// every violation rather than stopping at the first one.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, e := range verrs {
				errs = append(errs, ValidationError{
					FieldPath: e.Namespace(),
					Message:   getValidationMessage(e),
				})
			}
		} else {
			errs = append(errs, ValidationError{FieldPath: "config", Message: err.Error()})
		}
	}

	for name := range c.MonitoredNetworks {
		// validator.v10 only validates struct fields, not map keys, so
		// map keys are checked by running the same "ifname" tag through
		// Var rather than duplicating validateIfname's regex here.
		if err := validate.Var(name, "ifname"); err != nil {
			errs = append(errs, ValidationError{
				FieldPath: "monitored_networks." + name,
				Message:   "key must be a valid Linux interface name",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = verrs
	return true
}
