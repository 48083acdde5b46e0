package tor

import "errors"

var (
	// ErrNotRunning is returned when an operation needs a running embedded
	// Tor daemon but Start has not succeeded.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")

	// ErrInvalidOnionAddress is returned when a host ends in .onion but is
	// not a valid v3 onion address.
	ErrInvalidOnionAddress = errors.New("invalid onion address")

	// ErrV2AddressDeprecated is returned when a v2 address is provided.
	// V2 addresses stopped working in October 2021.
	ErrV2AddressDeprecated = errors.New("v2 onion addresses are deprecated and no longer functional")
)
