package chat

import (
	"context"
	"fmt"

	"i4.energy/across/modemd/at"
)

type reply struct {
	result *at.Result
	err    error
}

// Exec sends cmd and waits for its result. When ctx ends before the command
// reaches the wire it is withdrawn; a command already on the wire still runs
// to completion but its result is discarded.
//
// Exec must not be called from a chat callback.
func (ch *Chat) Exec(ctx context.Context, cmd string, prefixes []string) (*at.Result, error) {
	replies := make(chan reply, 1)
	id := ch.Send(cmd, prefixes, func(r *at.Result, err error) {
		replies <- reply{r, err}
	})
	return ch.wait(ctx, id, cmd, replies)
}

// ExecListing is Exec for listing commands. listing runs on the chat's event
// loop for every matching line, or line and PDU when pdu is set.
func (ch *Chat) ExecListing(ctx context.Context, cmd string, prefixes []string, pdu bool, listing NotifyFunc) (*at.Result, error) {
	replies := make(chan reply, 1)
	done := func(r *at.Result, err error) {
		replies <- reply{r, err}
	}

	var id uint
	if pdu {
		id = ch.SendPDUListing(cmd, prefixes, listing, done)
	} else {
		id = ch.SendListing(cmd, prefixes, listing, done)
	}
	return ch.wait(ctx, id, cmd, replies)
}

func (ch *Chat) wait(ctx context.Context, id uint, cmd string, replies <-chan reply) (*at.Result, error) {
	if id == 0 {
		return nil, fmt.Errorf("send %q: %w", cmd, ErrClosed)
	}

	select {
	case rep := <-replies:
		if rep.err != nil {
			return rep.result, fmt.Errorf("%q: %w", cmd, rep.err)
		}
		return rep.result, nil
	case <-ctx.Done():
		if ch.Cancel(id) {
			return nil, fmt.Errorf("%q withdrawn: %w", cmd, ctx.Err())
		}
		return nil, fmt.Errorf("%q: %w", cmd, ctx.Err())
	}
}
