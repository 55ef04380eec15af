package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError string
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: "invalid JSON"},
		{name: "empty body", body: ``, expectError: "request body is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError != "" {
				assert.ErrorContains(t, err, tt.expectError)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest["name"])
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(`[`))
	var dest map[string]string

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"invalid JSON`)
}

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/tenants/t-1/users", nil)
	req = mux.SetURLVars(req, map[string]string{"tenantId": "t-1"})

	val, err := ParsePathString(req, "tenantId")
	assert.NoError(t, err)
	assert.Equal(t, "t-1", val)

	_, err = ParsePathString(req, "userId")
	assert.EqualError(t, err, "missing path parameter: userId")

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, req, "userId")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/users?page=3&limit=abc&search=ada", nil)

	page, err := ParseQueryInt(req, "page", 1)
	assert.NoError(t, err)
	assert.Equal(t, 3, page)

	_, err = ParseQueryInt(req, "limit", 20)
	assert.EqualError(t, err, "invalid integer for query param limit: abc")

	missing, err := ParseQueryInt(req, "offset", 7)
	assert.NoError(t, err)
	assert.Equal(t, 7, missing)

	assert.Equal(t, "ada", ParseQueryString(req, "search", ""))
	assert.Equal(t, "createdAt", ParseQueryString(req, "sortBy", "createdAt"))
}
