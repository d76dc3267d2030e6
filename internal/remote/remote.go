// Package remote is the boundary to the chat platform that hosts the game bot.
//
// The engine only sees Client: it invokes slash commands, re-reads replies and
// forwards raw replies to a human. Concrete clients live in subpackages.
package remote

import (
	"context"
	"errors"
	"fmt"

	"fisherbot/internal/classifier"
)

var (
	// ErrUnreadable means the reply was missing, malformed or unexpected.
	ErrUnreadable = errors.New("remote reply unreadable")
	// ErrTimeout means the bounded wait for a remote call elapsed.
	ErrTimeout = errors.New("remote call timed out")
)

// Reply is the result of a remote action.
type Reply struct {
	ID        string
	ChannelID string
	Blocks    []classifier.TextBlock
	// HasImage is set when the reply carries an attachment the classifier cannot read.
	HasImage bool
}

// Client is the remote RPC surface.
type Client interface {
	// Invoke runs action (a slash command name) in channel with args.
	Invoke(ctx context.Context, action, channel string, args map[string]string) (Reply, error)
	// FetchReply re-reads a previously seen reply by reference.
	FetchReply(ctx context.Context, refID string) (Reply, error)
	// Forward sends the referenced reply to userID for manual handling.
	Forward(ctx context.Context, refID, userID string) error
}

// Normalize maps context deadlines onto ErrTimeout and leaves other errors as is.
func Normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreadable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
