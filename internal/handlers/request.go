package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tailorline/storefront/internal/platform/auth"
	"github.com/tailorline/storefront/internal/services"
)

const dateLayout = "2006-01-02"

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// parseTimeParam accepts RFC3339 timestamps or a bare date. For a bare date used as an exclusive
// upper bound the following midnight is returned so the whole day is included.
func parseTimeParam(value string, upperBound bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if day, err := time.Parse(dateLayout, value); err == nil {
		if upperBound {
			day = day.AddDate(0, 0, 1)
		}
		return day.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be an RFC3339 timestamp or YYYY-MM-DD date")
}

func actorFromIdentity(r *http.Request, identity *auth.Identity) services.Actor {
	return services.Actor{
		UserID:     strings.TrimSpace(identity.UID),
		Email:      strings.TrimSpace(identity.Email),
		BackOffice: identity.IsBackOffice(),
		Admin:      identity.HasRole(auth.RoleAdmin),
		RequestID:  middleware.GetReqID(r.Context()),
	}
}

func requireIdentity(r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}
