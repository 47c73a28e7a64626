package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if the Dialer returned no Transport, or if a driver the
	// operation needs failed to probe.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	//
	// Callers may handle this error specially (for example, by prompting
	// the user for a PIN) and retry initialization.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrSIMPukRequired is returned when the SIM card is blocked and waits
	// for its PUK. The modem is not unblocked automatically.
	ErrSIMPukRequired = errors.New("SIM PUK required")

	// ErrLoopRunning is returned by Loop when another Loop is already running
	// for the same Modem.
	ErrLoopRunning = errors.New("modem loop already running")

	// ErrInvalidRecipient is returned by SendSMS for an empty or malformed
	// phone number.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrEmptyMessage is returned by SendSMS when there is no text to send.
	ErrEmptyMessage = errors.New("empty message")
)
