package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentRequestValidate(t *testing.T) {
	valid := PaymentRequest{OrderID: 42, UserID: 7, Amount: 99.90}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name string
		req  PaymentRequest
	}{
		{"missing order", PaymentRequest{UserID: 7, Amount: 10}},
		{"missing user", PaymentRequest{OrderID: 42, Amount: 10}},
		{"zero amount", PaymentRequest{OrderID: 42, UserID: 7}},
		{"negative amount", PaymentRequest{OrderID: 42, UserID: 7, Amount: -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			assert.ErrorIs(t, err, ErrInvalidPayment)
		})
	}
}
