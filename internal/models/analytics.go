package models

// AnalyticsType selects which badge the analytics endpoint renders.
type AnalyticsType string

const (
	AnalyticsTypeUsers    AnalyticsType = "users"
	AnalyticsTypeMessages AnalyticsType = "messages"
)

// Analytics is a shields.io endpoint badge.
type Analytics struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
}
