package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid simple", "chef99", false},
		{"valid with underscore", "chef_99", false},
		{"valid 3 chars", "abc", false},
		{"valid 50 chars", strings.Repeat("a", 50), false},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 51), true},
		{"spaces", "chef 99", true},
		{"special chars", "chef@99", true},
		{"leading underscore", "_chef", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUsername_ErrorCarriesField(t *testing.T) {
	err := ValidateUsername("x")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "username", verr.Field)
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "chef99", NormalizeUsername("  Chef99 "))
	assert.Equal(t, "chef_99", NormalizeUsername("CHEF_99"))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("chef99@example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("not-an-email"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "chef@example.com", NormalizeEmail("  Chef@Example.COM "))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("123456"))
	assert.Error(t, ValidatePassword("12345"))
}
