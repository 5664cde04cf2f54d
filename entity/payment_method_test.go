package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMethodExpiry(t *testing.T) {
	method := &PaymentMethod{}
	method.SetExpiry(2, 2028)

	require.NotNil(t, method.ExpiresTime)
	assert.Equal(t, time.Date(2028, 2, 29, 23, 59, 59, 0, time.UTC), *method.ExpiresTime)
	assert.False(t, method.IsExpired(time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC)))
	assert.True(t, method.IsExpired(time.Date(2028, 3, 1, 0, 0, 0, 0, time.UTC)))

	december := CardExpiryTime(12, 2030)
	assert.Equal(t, time.Date(2030, 12, 31, 23, 59, 59, 0, time.UTC), december)
}

func TestParseExpiry(t *testing.T) {
	month, year, err := ParseExpiry("0331")
	require.NoError(t, err)
	assert.Equal(t, 3, month)
	assert.Equal(t, 2031, year)

	for _, value := range []string{"", "331", "1331", "ab31", "03xy"} {
		_, _, err := ParseExpiry(value)
		assert.Error(t, err, value)
	}
}
