// internal/models/handle.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// HandleState is the verification state of a registered handle.
type HandleState string

const (
	HandleStateUnknown HandleState = "unknown"
	HandleStateValid   HandleState = "valid"
	HandleStateInvalid HandleState = "invalid"
)

// HandleStates lists every state in queue-processing order.
var HandleStates = []HandleState{HandleStateUnknown, HandleStateInvalid, HandleStateValid}

// IsKnown reports whether s is one of the declared states.
func (s HandleState) IsKnown() bool {
	switch s {
	case HandleStateUnknown, HandleStateValid, HandleStateInvalid:
		return true
	}
	return false
}

// ErrIllegalTransition is returned by Transition for moves the registry refuses.
type ErrIllegalTransition struct {
	From HandleState
	To   HandleState
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal handle transition %q -> %q", e.From, e.To)
}

// Transition validates a move between handle states and returns the target.
//
// The registry is permissive: any known state may move to VALID or INVALID,
// and re-registration may reset any state back to UNKNOWN.
func Transition(from, to HandleState) (HandleState, error) {
	if !from.IsKnown() || !to.IsKnown() {
		return from, &ErrIllegalTransition{From: from, To: to}
	}
	return to, nil
}

// RatingSnapshot is a point-in-time reading for one handle from the rating source.
type RatingSnapshot struct {
	Handle                  string `json:"handle"`
	Rating                  int    `json:"rating"`
	MaxRating               int    `json:"maxRating"`
	Rank                    string `json:"rank"`
	MaxRank                 string `json:"maxRank"`
	Color                   string `json:"color"`
	Contribution            int    `json:"contribution"`
	FriendOfCount           int    `json:"friendOfCount"`
	LastOnlineTimeSeconds   int64  `json:"lastOnlineTimeSeconds"`
	RegistrationTimeSeconds int64  `json:"registrationTimeSeconds"`
	Avatar                  string `json:"avatar,omitempty"`
	TitlePhoto              string `json:"titlePhoto,omitempty"`
	FirstName               string `json:"firstName,omitempty"`
	LastName                string `json:"lastName,omitempty"`
	Country                 string `json:"country,omitempty"`
	City                    string `json:"city,omitempty"`
	Organization            string `json:"organization,omitempty"`
}

// HandleRecord is one registered handle owned by the registry.
// Data is nil while State is HandleStateUnknown.
type HandleRecord struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Handle      string          `json:"handle"`
	State       HandleState     `json:"state"`
	Data        *RatingSnapshot `json:"data"`
	Created     time.Time       `json:"created"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Handles returns the handle names of records in order.
func Handles(records []HandleRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Handle)
	}
	return out
}

// FilterByHandles keeps the records whose handle appears in handles, ignoring
// case the way the rating source does.
func FilterByHandles(records []HandleRecord, handles []string) []HandleRecord {
	set := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		set[strings.ToLower(h)] = struct{}{}
	}
	out := make([]HandleRecord, 0, len(handles))
	for _, r := range records {
		if _, ok := set[strings.ToLower(r.Handle)]; ok {
			out = append(out, r)
		}
	}
	return out
}

// RatingsResponse is the classified outcome of a rating-source lookup.
type RatingsResponse struct {
	Users          []RatingSnapshot `json:"users"`
	InvalidHandles []string         `json:"invalidHandles"`
}
