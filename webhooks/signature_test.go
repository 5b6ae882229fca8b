package webhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment.confirmed"}`)
	sig := Sign(body, "whsec_test")

	assert.Len(t, sig, 64)
	assert.True(t, VerifySignature(body, sig, "whsec_test"))
	assert.False(t, VerifySignature(body, sig, "other"))
	assert.False(t, VerifySignature([]byte(`{"id":"evt_1","type":"payment.failed"}`), sig, "whsec_test"))
	assert.False(t, VerifySignature(body, "not-hex", "whsec_test"))
	assert.False(t, VerifySignature(body, "", "whsec_test"))
}
