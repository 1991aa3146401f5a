package domain

import "time"

// ExpiryDecision is the outcome of the storage-expiry gate.
type ExpiryDecision int

const (
	// ExpiryAllow permits the forward to proceed.
	ExpiryAllow ExpiryDecision = iota
	// ExpiryExpired blocks the forward: the retention window has
	// passed. Download of the scanned copy stays available; expiry
	// restricts forwarding only, never read access.
	ExpiryExpired
	// ExpiryAdminOverrideRequired blocks an admin forward on an
	// expired item until the override flag is supplied explicitly,
	// forcing an auditable second step.
	ExpiryAdminOverrideRequired
)

func (d ExpiryDecision) String() string {
	switch d {
	case ExpiryAllow:
		return "allow"
	case ExpiryExpired:
		return "expired"
	case ExpiryAdminOverrideRequired:
		return "admin_override_required"
	}
	return "unknown"
}

// CheckStorageExpiry gates a forwarding action on the item's retention
// window. A nil expiresAt means the item never expires for this gate.
// The override flag is role-gated: it has no effect for non-admins.
func CheckStorageExpiry(expiresAt *time.Time, isAdmin, overrideRequested bool, now time.Time) ExpiryDecision {
	if expiresAt == nil || !now.After(*expiresAt) {
		return ExpiryAllow
	}
	if !isAdmin {
		return ExpiryExpired
	}
	if !overrideRequested {
		return ExpiryAdminOverrideRequired
	}
	return ExpiryAllow
}
