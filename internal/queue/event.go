// Package queue defines message payloads exchanged over the message broker.
package queue

// Mail event kinds.
const (
    MailKindVerificationCode = "verification_code"
    MailKindPasswordReset    = "password_reset"
)

// MailEvent is published to the mail.outbound queue whenever the service
// needs an email delivered.  Delivery is fire-and-forget: the verification
// code or reset ticket referenced by the event is already persisted, so a
// lost message only means the user has to request it again.
type MailEvent struct {
    Kind     string `json:"kind"`                // one of the MailKind constants
    Email    string `json:"email"`               // recipient address
    Username string `json:"username,omitempty"`  // greeting name for reset mails
    Code     string `json:"code,omitempty"`      // 6-digit verification code
    ResetURL string `json:"reset_url,omitempty"` // clickable password-reset link
    QueuedAt string `json:"queued_at"`           // RFC3339 timestamp of publication
}
