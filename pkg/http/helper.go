package http

import (
	"net/http"
	"strconv"
	"time"

	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	return config.NormalizePaginationLimit(limit), config.NormalizeOffset(offset), nil
}

// ExtractInt64Param reads a required positive integer query parameter.
func ExtractInt64Param(r *http.Request, name string) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, apperrors.InvalidInput(name + " is required")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, apperrors.InvalidInput("invalid " + name + " parameter: " + s)
	}
	return v, nil
}

// ExtractTimeParam reads an optional date or RFC3339 query parameter.
func ExtractTimeParam(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	t, err := model.ParseDate(s)
	if err != nil {
		return nil, apperrors.InvalidInput("invalid " + name + " parameter, expected YYYY-MM-DD or RFC3339: " + s)
	}
	return &t, nil
}

// ExtractActorID reads a positive numeric identity header such as X-User-ID.
func ExtractActorID(r *http.Request, header string) (int64, error) {
	s := r.Header.Get(header)
	if s == "" {
		return 0, apperrors.Unauthorized(header + " header is required")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, apperrors.InvalidInput("invalid " + header + " header: " + s)
	}
	return v, nil
}
