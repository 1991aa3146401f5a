package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKycApproved(t *testing.T) {
	t.Run("approved and verified both count", func(t *testing.T) {
		assert.True(t, IsKycApproved(KycStatusApproved))
		assert.True(t, IsKycApproved(KycStatusVerified))
	})

	t.Run("other statuses do not", func(t *testing.T) {
		for _, status := range []KycStatus{KycStatusNotStarted, KycStatusPending, KycStatusRejected, KycStatus("")} {
			assert.False(t, IsKycApproved(status), "status %q", status)
		}
	})
}

func TestCanForwardMail(t *testing.T) {
	t.Run("exempt tags bypass verification", func(t *testing.T) {
		tags := []string{
			"HMRC", "hmrc", "  hmrc  ",
			"Companies House", "companies house",
			"companieshouse", "companies_house",
		}
		for _, tag := range tags {
			assert.True(t, CanForwardMail(KycStatusNotStarted, tag), "tag %q", tag)
			assert.True(t, CanForwardMail(KycStatusRejected, tag), "tag %q", tag)
		}
	})

	t.Run("non-exempt tags require approval", func(t *testing.T) {
		assert.False(t, CanForwardMail(KycStatusNotStarted, "Bank Statement"))
		assert.False(t, CanForwardMail(KycStatusPending, ""))
		assert.False(t, CanForwardMail(KycStatusRejected, "Invoice"))
	})

	t.Run("approved users forward anything", func(t *testing.T) {
		assert.True(t, CanForwardMail(KycStatusApproved, "Bank Statement"))
		assert.True(t, CanForwardMail(KycStatusVerified, ""))
	})
}
