package queue

import "context"

// Client hands analysis messages to a queue backend. Implementations must
// be safe for concurrent use; the API process shares one client across
// request handlers.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
