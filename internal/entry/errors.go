package entry

import "errors"

// Sentinel errors for the taxonomy the engine classifies outcomes into.
// Use errors.Is(err, entry.ErrAuth) to check a returned error's kind.
var (
	ErrAuth             = errors.New("gcs-rsync: authentication failed")
	ErrTransport        = errors.New("gcs-rsync: transport failure")
	ErrRemoteStatus     = errors.New("gcs-rsync: remote returned an error status")
	ErrLocalIO          = errors.New("gcs-rsync: local I/O failure")
	ErrProtocol         = errors.New("gcs-rsync: malformed response")
	ErrOrderingViolation = errors.New("gcs-rsync: entry source emitted out-of-order keys")
	ErrCancelled        = errors.New("gcs-rsync: run cancelled")
	ErrConfig           = errors.New("gcs-rsync: invalid configuration")
)
