package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestValidateToken(t *testing.T) {
	v := NewValidator("s3cret")
	assert.True(t, v.Enabled())
	assert.True(t, v.ValidateToken("s3cret"))
	assert.False(t, v.ValidateToken("s3cre"))
	assert.False(t, v.ValidateToken(""))

	open := NewValidator("")
	assert.False(t, open.Enabled())
	assert.True(t, open.ValidateToken("anything"))
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		header     string
		query      string
		wantStatus int
	}{
		{"valid bearer header", "s3cret", "Bearer s3cret", "", http.StatusOK},
		{"raw header", "s3cret", "s3cret", "", http.StatusOK},
		{"query parameter", "s3cret", "", "s3cret", http.StatusOK},
		{"wrong token", "s3cret", "Bearer nope", "", http.StatusUnauthorized},
		{"missing token", "s3cret", "", "", http.StatusUnauthorized},
		{"auth disabled", "", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			target := "/api/events"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodPost, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := Middleware(NewValidator(tt.token))(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})

			assert.NoError(t, handler(c))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
