// internal/workers/handles/verify-unknown-handles/models.go
package verifyunknownhandles

// Output summarizes one verification run.
type Output struct {
	Fetched int `json:"fetched"`
	Invalid int `json:"invalid"`
	Valid   int `json:"valid"`
}
