package speech

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatorAcceptsFullPayload(t *testing.T) {
	t.Parallel()

	v, err := NewValidator()
	require.NoError(t, err)

	payload := []byte(`{
		"pickup": "12 High Street",
		"destination": "Heathrow Terminal 5",
		"passengers": 2,
		"pickup_time": "half past five",
		"intent": "yes",
		"special_instructions": "wheelchair please"
	}`)
	require.NoError(t, v.Validate(payload))
}

func TestValidatorAcceptsPartialPayload(t *testing.T) {
	t.Parallel()

	v, err := NewValidator()
	require.NoError(t, err)

	require.NoError(t, v.Validate([]byte(`{"pickup": "12 High Street"}`)))
	require.NoError(t, v.Validate([]byte(`{}`)))
}

func TestValidatorRejectsUnknownField(t *testing.T) {
	t.Parallel()

	v, err := NewValidator()
	require.NoError(t, err)

	err = v.Validate([]byte(`{"pickup": "12 High Street", "luggage": 3}`))
	require.Error(t, err)
}

func TestValidatorRejectsWrongTypes(t *testing.T) {
	t.Parallel()

	v, err := NewValidator()
	require.NoError(t, err)

	require.Error(t, v.Validate([]byte(`{"passengers": "two"}`)))
	require.Error(t, v.Validate([]byte(`{"passengers": 2.5}`)))
	require.Error(t, v.Validate([]byte(`{"passengers": -1}`)))
	require.Error(t, v.Validate([]byte(`{"pickup": 12}`)))
	require.Error(t, v.Validate([]byte(`["not", "an", "object"]`)))
}

func TestValidatorRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	v, err := NewValidator()
	require.NoError(t, err)

	require.Error(t, v.Validate(nil))
	require.Error(t, v.Validate([]byte(`{`)))
}
