// internal/utils/validator_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleForm struct {
	FirstName string `validate:"required,max=50"`
	Email     string `validate:"required,email"`
	PAN       string `validate:"required,max=12"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(&sampleForm{
		FirstName: "Devi",
		Email:     "devi@example.com",
		PAN:       "ABCDE1234F",
	})
	assert.NoError(t, err)
}

func TestGetValidationErrorsCollectsEveryViolation(t *testing.T) {
	err := ValidateStruct(&sampleForm{
		FirstName: "",
		Email:     "not-an-email",
		PAN:       "ABCDE1234FXYZ",
	})
	require.Error(t, err)

	errs := GetValidationErrors(err)
	require.Len(t, errs, 3)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}

	assert.Equal(t, "required", byField["firstName"].Tag)
	assert.Equal(t, "email", byField["email"].Tag)
	assert.Equal(t, "max", byField["pAN"].Tag)
	assert.Contains(t, byField["pAN"].Message, "at most 12")
}

func TestStrongPassword(t *testing.T) {
	type form struct {
		Password string `validate:"strong_password"`
	}

	assert.NoError(t, ValidateStruct(&form{Password: "Str0ng!pass"}))
	assert.Error(t, ValidateStruct(&form{Password: "weakpass"}))
	assert.Error(t, ValidateStruct(&form{Password: "Short1!"}))
	assert.Error(t, ValidateStruct(&form{Password: "nouppercase1!"}))
}
