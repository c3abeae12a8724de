package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	valid := []string{"Asha", "Anne-Marie O'Neil", "J. R. Rao", "Zoë"}
	invalid := []string{"", "A", strings.Repeat("a", 51), "R2D2", "-lead", "name!"}
	for _, v := range valid {
		assert.True(t, Name(v), v)
	}
	for _, v := range invalid {
		assert.False(t, Name(v), v)
	}
}

func TestMobile(t *testing.T) {
	assert.True(t, Mobile("9876543210"))
	assert.True(t, Mobile("6000000000"))
	assert.False(t, Mobile("5876543210"))
	assert.False(t, Mobile("987654321"))
	assert.False(t, Mobile("98765432100"))
	assert.False(t, Mobile("98765abcde"))
}

func TestPincode(t *testing.T) {
	assert.True(t, Pincode("560001"))
	assert.False(t, Pincode("060001"))
	assert.False(t, Pincode("56001"))
	assert.False(t, Pincode("5600011"))
}

func TestPassword(t *testing.T) {
	assert.True(t, Password("Str0ng!pass"))
	assert.False(t, Password("Sh0rt!"), "too short")
	assert.False(t, Password("alllower1!"), "no upper")
	assert.False(t, Password("ALLUPPER1!"), "no lower")
	assert.False(t, Password("NoDigits!!"), "no digit")
	assert.False(t, Password("NoSymbol11"), "no symbol")
	assert.False(t, Password("Has Space1!"), "space")
	assert.False(t, Password("Aa1!"+strings.Repeat("x", 61)), "too long")
}

type signup struct {
	Name     string `json:"name" validate:"required,name"`
	Email    string `json:"email" validate:"required,storefront_email"`
	Mobile   string `json:"mobile" validate:"required,mobile"`
	Pincode  string `json:"pincode" validate:"omitempty,pincode"`
	Password string `json:"password" validate:"required,password"`
}

func TestStructCollectsFieldErrors(t *testing.T) {
	err := Default().Struct(signup{
		Name:     "A",
		Email:    "not-an-email",
		Mobile:   "12345",
		Pincode:  "000000",
		Password: "weak",
	})
	verr, ok := As(err)
	require.True(t, ok, "expected *Errors, got %v", err)

	rules := map[string]string{}
	for _, f := range verr.Fields {
		rules[f.Field] = f.Rule
		assert.NotEmpty(t, f.Message)
	}
	assert.Equal(t, map[string]string{
		"name":     "name",
		"email":    "storefront_email",
		"mobile":   "mobile",
		"pincode":  "pincode",
		"password": "password",
	}, rules)

	details := verr.Details()["fields"].(map[string]string)
	assert.Len(t, details, 5)
}

func TestStructAcceptsValidInput(t *testing.T) {
	err := Default().Struct(signup{
		Name:     "Asha Rao",
		Email:    "asha@example.com",
		Mobile:   "9876543210",
		Password: "Str0ng!pass",
	})
	require.NoError(t, err)
}

func TestEmailLengthLimit(t *testing.T) {
	long := strings.Repeat("a", 250) + "@example.com"
	err := Default().Struct(signup{Name: "Asha", Email: long, Mobile: "9876543210", Password: "Str0ng!pass"})
	verr, ok := As(err)
	require.True(t, ok)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "email", verr.Fields[0].Field)
}
