// Package codeforces fetches ratings from the Codeforces user.info endpoint
// and classifies each requested handle as resolved or invalid.
package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "rating-notifier/internal/common/errors"
	apphttp "rating-notifier/internal/common/http"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/common/metrics"
	"rating-notifier/internal/common/validation"
	"rating-notifier/internal/models"
)

var (
	handlePattern   = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	notFoundPattern = regexp.MustCompile(`handles: User with handle (\S+) not found`)
)

const (
	statusOK     = "OK"
	statusFailed = "FAILED"
)

// Rating source request outcomes.
const (
	OutcomeResolved     = "resolved"
	OutcomeMalformed    = "malformed"
	OutcomeNotFound     = "not_found"
	OutcomeUnattributed = "unattributed"
	OutcomeError        = "error"
)

var envelopeSchema = validation.MustSchema(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"status"},
	"properties": map[string]interface{}{
		"status":  map[string]interface{}{"type": "string", "enum": []interface{}{statusOK, statusFailed}},
		"comment": map[string]interface{}{"type": "string"},
		"result": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"handle"},
				"properties": map[string]interface{}{
					"handle": map[string]interface{}{"type": "string"},
					"rating": map[string]interface{}{"type": "integer"},
					"rank":   map[string]interface{}{"type": "string"},
				},
			},
		},
	},
})

// HTTPGetter is the transport used by Client.
type HTTPGetter interface {
	Get(ctx context.Context, url string) (int, []byte, error)
}

type envelope struct {
	Status  string                  `json:"status"`
	Comment string                  `json:"comment"`
	Result  []models.RatingSnapshot `json:"result"`
}

// Client talks to the Codeforces API.
type Client struct {
	baseURL string
	http    HTTPGetter
	logger  logger.Logger
}

func NewClient(baseURL string, http HTTPGetter, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http,
		logger:  log.WithFields(map[string]interface{}{"component": "codeforces"}),
	}
}

// NewHTTPClient builds a Client over the shared timeout-bound HTTP client.
func NewHTTPClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	return NewClient(baseURL, apphttp.NewClient(timeout), log)
}

// FetchRatings looks up handles. Malformed handles reject the whole batch
// without a request. A failure naming one handle returns that handle as the
// sole invalid one. Any other failure is logged and returned as an error.
func (c *Client) FetchRatings(ctx context.Context, handles []string) (*models.RatingsResponse, error) {
	if len(handles) == 0 {
		return &models.RatingsResponse{Users: []models.RatingSnapshot{}, InvalidHandles: []string{}}, nil
	}

	unique := dedupe(handles)

	var malformed []string
	for _, h := range unique {
		if !handlePattern.MatchString(h) {
			malformed = append(malformed, h)
		}
	}
	if len(malformed) > 0 {
		metrics.RatingSourceRequests.WithLabelValues(OutcomeMalformed).Inc()
		return &models.RatingsResponse{Users: []models.RatingSnapshot{}, InvalidHandles: malformed}, nil
	}

	status, body, err := c.http.Get(ctx, c.userInfoURL(unique))
	if err != nil {
		metrics.RatingSourceRequests.WithLabelValues(OutcomeError).Inc()
		c.logger.Error("Codeforces request failed", map[string]interface{}{
			"handles": len(unique),
			"error":   err.Error(),
		})
		return nil, apperrors.NewRatingSourceUnavailableError(err)
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		metrics.RatingSourceRequests.WithLabelValues(OutcomeError).Inc()
		c.logger.Error("Codeforces returned an unreadable body", map[string]interface{}{
			"httpStatus": status,
			"error":      err.Error(),
		})
		return nil, err
	}

	if env.Status == statusOK && status < 300 {
		users := make([]models.RatingSnapshot, 0, len(env.Result))
		for _, u := range env.Result {
			u.Color = Color(u.Rank)
			users = append(users, u)
		}
		metrics.RatingSourceRequests.WithLabelValues(OutcomeResolved).Inc()
		return &models.RatingsResponse{Users: users, InvalidHandles: []string{}}, nil
	}

	if m := notFoundPattern.FindStringSubmatch(env.Comment); m != nil {
		metrics.RatingSourceRequests.WithLabelValues(OutcomeNotFound).Inc()
		return &models.RatingsResponse{Users: []models.RatingSnapshot{}, InvalidHandles: []string{m[1]}}, nil
	}

	metrics.RatingSourceRequests.WithLabelValues(OutcomeUnattributed).Inc()
	c.logger.Error("Codeforces responded with an error message but no invalid handle could be identified", map[string]interface{}{
		"httpStatus": status,
		"comment":    env.Comment,
	})
	return nil, apperrors.NewRatingSourceUnattributedError(env.Comment).
		WithMetadata("httpStatus", status)
}

func (c *Client) userInfoURL(handles []string) string {
	// Handles are already restricted to URL-safe characters.
	return fmt.Sprintf("%s/user.info?handles=%s&checkHistoricHandles=false",
		c.baseURL, strings.Join(handles, ";"))
}

func decodeEnvelope(body []byte) (*envelope, error) {
	result, err := envelopeSchema.ValidateBytes(body)
	if err != nil {
		return nil, apperrors.NewRatingSourceMalformedResponseError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewRatingSourceMalformedResponseError(result.Error())
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.NewRatingSourceMalformedResponseError(err.Error())
	}
	return &env, nil
}

// dedupe keeps the first occurrence of each handle, preserving order.
func dedupe(handles []string) []string {
	seen := make(map[string]struct{}, len(handles))
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
