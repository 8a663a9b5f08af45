// internal/workers/handles/poll-ratings/models.go
package pollratings

// Output summarizes one polling run.
type Output struct {
	Fetched   int `json:"fetched"`
	Invalid   int `json:"invalid"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}
