package domain

import "strings"

// KycStatus is the identity-verification state reported for a user.
type KycStatus string

const (
	KycStatusNotStarted KycStatus = "not_started"
	KycStatusPending    KycStatus = "pending"
	KycStatusApproved   KycStatus = "approved"
	KycStatusVerified   KycStatus = "verified"
	KycStatusRejected   KycStatus = "rejected"
)

// exemptForwardingTags are mail classifications that may always be
// forwarded regardless of verification state. Regulatory and government
// mail must reach the recipient even while KYC is incomplete.
var exemptForwardingTags = map[string]struct{}{
	"hmrc":            {},
	"companies house": {},
	"companieshouse":  {},
	"companies_house": {},
}

// IsKycApproved reports whether the status counts as approved. Upstream
// sources report the approved terminal state under two names, "approved"
// and "verified"; both are accepted and treated identically.
func IsKycApproved(status KycStatus) bool {
	return status == KycStatusApproved || status == KycStatusVerified
}

// CanForwardMail decides whether a forwarding action is currently
// permitted for a mail item. The tag exemption is checked first and
// short-circuits: exempt mail is forwardable unconditionally. Otherwise
// the caller must be KYC approved.
func CanForwardMail(status KycStatus, tag string) bool {
	normalized := strings.ToLower(strings.TrimSpace(tag))
	if _, exempt := exemptForwardingTags[normalized]; exempt {
		return true
	}
	return IsKycApproved(status)
}
