package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// driverTag marks settings a storage driver cannot start without.
const driverTag = "required_for_driver"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateStorageDriver, StorageConfig{})

	return v
}

// Validate reports every invalid setting at once. The service refuses to
// start on any of them.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}

	return fmt.Errorf("config validation failed:\n  %s", strings.Join(problems, "\n  "))
}

// validateStorageDriver requires the connection settings of the selected
// driver only. The memory driver needs none.
func validateStorageDriver(sl validator.StructLevel) {
	s, ok := sl.Current().Interface().(StorageConfig)
	if !ok {
		return
	}

	require := func(value, field string) {
		if value == "" {
			sl.ReportError(value, field, field, driverTag, s.Driver)
		}
	}

	switch s.Driver {
	case DriverMongo:
		require(s.Mongo.URI, "Mongo.URI")
		require(s.Mongo.Database, "Mongo.Database")
	case DriverPostgres:
		require(s.Postgres.DSN, "Postgres.DSN")
	}
}

func describe(fe validator.FieldError) string {
	field := formatFieldPath(fe.Namespace())

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, fe.Param())
	case driverTag:
		return fmt.Sprintf("%s is required when driver is %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "url", "http_url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

// formatFieldPath turns "Config.Storage.Mongo.URI" into "storage.mongo.uri",
// the same path koanf uses.
func formatFieldPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		path = namespace
	}

	return strings.ToLower(path)
}
