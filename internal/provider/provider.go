package provider

import (
	"context"
	"errors"
)

// Provider delivers one rendered message to one recipient and returns
// the provider-side message id when the transport has one.
type Provider interface {
	Send(ctx context.Context, to, body string) (providerMsgID string, err error)
}

// ErrPermanent marks failures that retrying cannot fix (bad recipient,
// rejected payload). Everything else is treated as temporary.
var ErrPermanent = errors.New("permanent_send_failure")
