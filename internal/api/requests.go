// Package api defines the raid wire schemas and validates request bodies
// before any gate logic runs.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gosimple/slug"

	"city-raid/internal/service"
)

// MaxLoginLen is the longest accepted profile login.
const MaxLoginLen = 39

// PreviewRequest is the body of POST /raid/preview.
type PreviewRequest struct {
	TargetLogin string `json:"target_login"`
}

// ExecuteRequest is the body of POST /raid/execute.
type ExecuteRequest struct {
	TargetLogin     string  `json:"target_login"`
	BoostPurchaseID *int64  `json:"boost_purchase_id,omitempty"`
	VehicleID       *string `json:"vehicle_id,omitempty"`
}

// LoadoutRequest is the body of POST /raid/loadout.
type LoadoutRequest struct {
	VehicleID *string `json:"vehicle_id,omitempty"`
	TagStyle  *string `json:"tag_style,omitempty"`
}

// ParsePreviewRequest decodes and validates a preview body.
func ParsePreviewRequest(r io.Reader) (PreviewRequest, error) {
	var req PreviewRequest
	if err := decodeStrict(r, &req); err != nil {
		return req, err
	}
	var errs []service.FieldError
	req.TargetLogin, errs = validateLogin("target_login", req.TargetLogin, errs)
	if len(errs) > 0 {
		return req, service.ValidationError(errs...)
	}
	return req, nil
}

// ParseExecuteRequest decodes and validates an execute body.
func ParseExecuteRequest(r io.Reader) (ExecuteRequest, error) {
	var req ExecuteRequest
	if err := decodeStrict(r, &req); err != nil {
		return req, err
	}
	var errs []service.FieldError
	req.TargetLogin, errs = validateLogin("target_login", req.TargetLogin, errs)
	if req.BoostPurchaseID != nil && *req.BoostPurchaseID <= 0 {
		errs = append(errs, service.FieldError{Field: "boost_purchase_id", Message: "must be a positive id"})
	}
	errs = validateID("vehicle_id", req.VehicleID, errs)
	if len(errs) > 0 {
		return req, service.ValidationError(errs...)
	}
	return req, nil
}

// ParseLoadoutRequest decodes and validates a loadout body.
func ParseLoadoutRequest(r io.Reader) (LoadoutRequest, error) {
	var req LoadoutRequest
	if err := decodeStrict(r, &req); err != nil {
		return req, err
	}
	var errs []service.FieldError
	if req.VehicleID == nil && req.TagStyle == nil {
		errs = append(errs, service.FieldError{Field: "vehicle_id", Message: "vehicle_id or tag_style is required"})
	}
	errs = validateID("vehicle_id", req.VehicleID, errs)
	errs = validateID("tag_style", req.TagStyle, errs)
	if len(errs) > 0 {
		return req, service.ValidationError(errs...)
	}
	return req, nil
}

// ParseHistoryLimit parses the ?limit= query value. Empty means the default.
func ParseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return service.DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > service.MaxHistoryLimit {
		return 0, service.ValidationError(service.FieldError{
			Field:   "limit",
			Message: fmt.Sprintf("must be an integer between 1 and %d", service.MaxHistoryLimit),
		})
	}
	return n, nil
}

// decodeStrict decodes exactly one JSON object, rejecting unknown fields and
// trailing data.
func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return service.ValidationError(service.FieldError{Field: "body", Message: "request body is required"})
		}
		return service.ValidationError(service.FieldError{Field: "body", Message: "invalid json: " + err.Error()})
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return service.ValidationError(service.FieldError{Field: "body", Message: "body must contain a single json object"})
	}
	return nil
}

func validateLogin(field, login string, errs []service.FieldError) (string, []service.FieldError) {
	login = strings.ToLower(strings.TrimSpace(login))
	switch {
	case login == "":
		errs = append(errs, service.FieldError{Field: field, Message: "required"})
	case len(login) > MaxLoginLen:
		errs = append(errs, service.FieldError{Field: field, Message: fmt.Sprintf("max length %d", MaxLoginLen)})
	case !slug.IsSlug(login):
		errs = append(errs, service.FieldError{Field: field, Message: "must be a valid login"})
	}
	return login, errs
}

// validateID checks an optional catalog identifier such as a vehicle or tag style.
func validateID(field string, id *string, errs []service.FieldError) []service.FieldError {
	if id == nil {
		return errs
	}
	if *id == "" || len(*id) > 64 {
		return append(errs, service.FieldError{Field: field, Message: "must be 1 to 64 characters"})
	}
	return errs
}
