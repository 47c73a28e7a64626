package cmd

//go:generate go tool mockgen -source=device.go -destination=mock_device.go -package=cmd

import (
	"context"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/atmodem"
	"i4.energy/across/modemd/modem"
)

// Device is the part of a modem the HTTP and MQTT front ends use.
// *modem.Modem implements it.
type Device interface {
	SendSMS(ctx context.Context, recipient, message string) ([]int, error)
	Registration(ctx context.Context) (atmodem.Registration, error)
	Operator(ctx context.Context) (atmodem.Operator, error)
	Operators(ctx context.Context) ([]atmodem.Operator, error)
	SignalStrength(ctx context.Context) (int, error)
	Exec(ctx context.Context, cmd string) (*at.Result, error)
	USSD(ctx context.Context, code string) error
}

var _ Device = (*modem.Modem)(nil)
