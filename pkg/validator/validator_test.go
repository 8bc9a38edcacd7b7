package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupBody struct {
	Email  string `json:"email" validate:"required,email,max=254"`
	Secret string `json:"secret,omitempty" validate:"required,min=8,max=72"`
	Role   string `json:"role" validate:"omitempty,oneof=learner trainer operations"`
	Ref    string `json:"ref" validate:"omitempty,uuid"`
	Skip   string `json:"-"`
	Plain  int    `validate:"gte=0"`
}

func valid() signupBody {
	return signupBody{Email: "a@example.com", Secret: "correct-horse"}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.Fields()
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*signupBody)
		field  string
		reason string
	}{
		{"missing email", func(b *signupBody) { b.Email = "" }, "email", "is required"},
		{"bad email", func(b *signupBody) { b.Email = "nope" }, "email", "must be a valid email address"},
		{"short secret", func(b *signupBody) { b.Secret = "abc" }, "secret", "must be at least 8 characters"},
		{"long secret", func(b *signupBody) { b.Secret = strings.Repeat("s", 73) }, "secret", "must be at most 72 characters"},
		{"unknown role", func(b *signupBody) { b.Role = "admin" }, "role", "must be one of: learner trainer operations"},
		{"bad uuid", func(b *signupBody) { b.Ref = "x" }, "ref", "must be a valid UUID"},
		{"untranslated tag", func(b *signupBody) { b.Plain = -1 }, "Plain", "failed on 'gte' validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(&b)
			fields := fieldsOf(t, Validate(b))
			assert.Equal(t, map[string]string{tt.field: tt.reason}, fields)
		})
	}
}

func TestValidate_OK(t *testing.T) {
	b := valid()
	b.Role = "trainer"
	b.Ref = "550e8400-e29b-41d4-a716-446655440000"
	assert.NoError(t, Validate(b))
}

func TestValidationError_Error(t *testing.T) {
	err := Validate(signupBody{})

	assert.Contains(t, err.Error(), "field 'email' is required")
	assert.Contains(t, err.Error(), "; field 'secret' is required")
}

func TestDecodeAndValidate(t *testing.T) {
	post := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", strings.NewReader(body))
	}

	var b signupBody
	require.NoError(t, DecodeAndValidate(post(`{"email":"a@example.com","secret":"correct-horse","role":"learner"}`), &b))
	assert.Equal(t, "learner", b.Role)

	assert.ErrorContains(t, DecodeAndValidate(post(`{broken`), &signupBody{}), "decode request body")
	assert.Contains(t, fieldsOf(t, DecodeAndValidate(post(`{"email":"x"}`), &signupBody{})), "email")

	huge := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	assert.ErrorContains(t, DecodeAndValidate(post(huge), &signupBody{}), "decode request body")
}
