package models

// RawIncomingMail is the subset of the inbound mail webhook we read.
type RawIncomingMail struct {
	Sender    string `json:"sender" form:"sender"`
	Subject   string `json:"subject" form:"subject"`
	Timestamp string `json:"timestamp" form:"timestamp"`
	Token     string `json:"token" form:"token"`
	Signature string `json:"signature" form:"signature"`
}

// IncomingMail is a trimmed registration request: the sender registers the subject as their handle.
type IncomingMail struct {
	Email     string
	Handle    string
	Timestamp string
	Token     string
	Signature string
}
