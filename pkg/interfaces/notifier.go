package interfaces

import "context"

// MessageSender is the delivery channel seam. The production implementation
// wraps the Telegram Bot API; tests substitute fakes to drive retry and
// rate-limit paths without the network.
type MessageSender interface {
	// Send delivers text to the channel identified by chatID and returns the
	// provider's message id. Implementations own their retry policy; callers
	// see only the final outcome.
	Send(ctx context.Context, chatID int64, text string) (int, error)
}
