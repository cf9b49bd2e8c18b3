package payment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lunserk/sacco-core/payment"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want payment.OrderStatus
	}{
		{"COMPLETED", payment.StatusCompleted},
		{"Completed", payment.StatusCompleted},
		{"TRANSACTION COMPLETED", payment.StatusCompleted},
		{"  completed  ", payment.StatusCompleted},
		{"PENDING", payment.StatusPending},
		{"Pending Confirmation", payment.StatusPending},
		{"FAILED", payment.StatusFailed},
		{"INVALID", payment.StatusFailed},
		{"REVERSED", payment.StatusFailed},
		{"", payment.StatusFailed},
		{"garbage", payment.StatusFailed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, payment.NormalizeStatus(tc.raw), "raw=%q", tc.raw)
	}
}
