package services

import "errors"

// Sync engine error taxonomy. Adapters and the token manager wrap these
// sentinels with fmt.Errorf("%w: ...") so callers can classify failures
// with errors.Is without parsing messages.
var (
	// ErrConnection covers dial, TLS and proxy failures.
	ErrConnection = errors.New("connection error")

	// ErrAuth covers rejected logins and failed token refreshes. A sync
	// that fails with ErrAuth moves the account to auth_required.
	ErrAuth = errors.New("authentication error")

	// ErrProtocol covers unexpected server responses after a successful
	// login (bad SELECT, malformed FETCH, non-2xx API responses).
	ErrProtocol = errors.New("protocol error")

	// ErrParse covers undecodable message payloads. Parse failures skip
	// the message, never the folder or the account.
	ErrParse = errors.New("parse error")
)
