// internal/workers/handles/reap-invalid-handles/models.go
package reapinvalidhandles

type Output struct {
	Fetched int `json:"fetched"`
	Reaped  int `json:"reaped"`
}
