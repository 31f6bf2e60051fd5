package utils

import (
	"errors"
	"math/rand"
)

const receiptCodeLength = 10
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const maxReceiptAttempts = 5

var ErrReceiptExhausted = errors.New("could not generate an unused receipt code")

// ReceiptCode returns "rcpt_" followed by random upper-case letters and digits.
func ReceiptCode() string {
	b := make([]byte, receiptCodeLength)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return "rcpt_" + string(b)
}

// GenerateUniqueReceipt draws receipt codes until taken reports one as free.
func GenerateUniqueReceipt(taken func(code string) (bool, error)) (string, error) {
	for i := 0; i < maxReceiptAttempts; i++ {
		code := ReceiptCode()
		used, err := taken(code)
		if err != nil {
			return "", err
		}
		if !used {
			return code, nil
		}
	}
	return "", ErrReceiptExhausted
}
