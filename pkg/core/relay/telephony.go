// Package relay escalates a session to its guardian contacts: text
// notifications to every contact, a live call bridge to the primary, and
// announcement calls to the rest.
package relay

import "context"

// Telephony is the outbound SMS and voice collaborator.
type Telephony interface {
	// SendNotification texts body to the given E.164 number.
	SendNotification(ctx context.Context, to, body string) error
	// Dial places a call that connects the callee to the live media bridge
	// at bridgeURL.
	Dial(ctx context.Context, to, bridgeURL string) error
	// Announce places a call that speaks message and hangs up.
	Announce(ctx context.Context, to, message string) error
}
