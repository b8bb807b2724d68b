package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Grade *string  `validate:"omitempty,oneof=a b c d e"`
	Score *float64 `validate:"omitempty,gte=0,lte=100"`
	Name  string   `validate:"required"`
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(sample{Name: "x", Grade: strPtr("b"), Score: f64Ptr(50)}))
	assert.NoError(t, Validate(sample{Name: "x"}))
}

func TestValidate_Failure(t *testing.T) {
	err := Validate(sample{Grade: strPtr("z")})
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	fields := vErr.Fields()
	assert.Contains(t, fields, "Grade")
	assert.Contains(t, fields, "Name")
	assert.Equal(t, "is required", fields["Name"])
	assert.Contains(t, err.Error(), "Name")
}

func TestValidate_RangeMessages(t *testing.T) {
	err := Validate(sample{Name: "x", Score: f64Ptr(200)})
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "must be less than or equal to 100", vErr.Fields()["Score"])
}
