package geo

import (
	"context"
	"encoding/json"
	"testing"

	apperrors "Resilix/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) *LocationInput {
	t.Helper()
	var in LocationInput
	require.NoError(t, json.Unmarshal([]byte(body), &in))
	return &in
}

func TestValidateAbsentLocation(t *testing.T) {
	loc, err := Validate(nil)
	assert.NoError(t, err)
	assert.Nil(t, loc)
}

func TestValidateRoundTrip(t *testing.T) {
	loc, err := Resolve(context.Background(), decode(t, `{"longitude": 9.7, "latitude": 4.05}`))
	require.NoError(t, err)
	assert.Equal(t, 9.7, loc.Longitude)
	assert.Equal(t, 4.05, loc.Latitude)
}

func TestValidateAcceptsNumericStrings(t *testing.T) {
	loc, err := Validate(decode(t, `{"longitude": "11.5", "latitude": "3.86"}`))
	require.NoError(t, err)
	assert.Equal(t, 11.5, loc.Longitude)
	assert.Equal(t, 3.86, loc.Latitude)
}

func TestValidateBoundaries(t *testing.T) {
	_, err := Validate(NewLocationInput(180, -90))
	assert.NoError(t, err)

	_, err = Validate(NewLocationInput(180.0001, 0))
	assert.True(t, apperrors.IsRejected(err))

	_, err = Validate(NewLocationInput(0, 91))
	assert.True(t, apperrors.IsRejected(err))
}

func TestValidateRejectsMissingAndNonNumeric(t *testing.T) {
	cases := map[string]string{
		"missing latitude": `{"longitude": 9.7}`,
		"null longitude":   `{"longitude": null, "latitude": 4}`,
		"text":             `{"longitude": "east", "latitude": 4}`,
		"object":           `{"longitude": {}, "latitude": 4}`,
		"both missing":     `{}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			loc, err := Validate(decode(t, body))
			assert.Nil(t, loc)
			require.True(t, apperrors.IsRejected(err))
			e, _ := apperrors.As(err)
			assert.NotEmpty(t, e.Fields["location"])
		})
	}
}
