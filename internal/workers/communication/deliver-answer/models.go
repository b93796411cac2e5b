// internal/workers/communication/deliver-answer/models.go
package deliveranswer

// Input carries a synthesized answer and the requested delivery channel.
// Channel "none" (or empty) means the answer is read in the chat surface
// only and nothing is sent.
type Input struct {
	SessionID string `json:"sessionId"`
	AnswerID  string `json:"answerId"`
	Answer    string `json:"answer"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
}

type Output struct {
	SessionID string `json:"sessionId"`
	AnswerID  string `json:"answerId"`
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	MessageID string `json:"messageId,omitempty"`
}
