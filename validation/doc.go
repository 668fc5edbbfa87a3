// Package validation wraps go-playground/validator for configuration and
// workflow records, plus a small programmatic Validator for checks that
// struct tags cannot express. Both report *errors.AppError values with the
// offending fields under Details["fields"].
package validation
