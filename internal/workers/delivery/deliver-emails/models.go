// internal/workers/delivery/deliver-emails/models.go
package deliveremails

type Output struct {
	Fetched int `json:"fetched"`
	Sent    int `json:"sent"`
}
