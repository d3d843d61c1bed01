package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor_Wrapped(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("conversation x: %w", ErrNotFound):    http.StatusNotFound,
		fmt.Errorf("owner mismatch: %w", ErrForbidden):   http.StatusForbidden,
		fmt.Errorf("expired: %w", ErrGone):               http.StatusGone,
		fmt.Errorf("upstream: %w", ErrModelUnavailable):  http.StatusBadGateway,
		fmt.Errorf("empty message: %w", ErrBadRequest):   http.StatusBadRequest,
		fmt.Errorf("retries: %w", ErrSlugExhausted):      http.StatusServiceUnavailable,
		fmt.Errorf("bad token: %w", ErrUnauthorized):     http.StatusUnauthorized,
		errors.New("disk on fire"):                       http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestFail_HidesDetailUnlessExposed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	defer ExposeErrors(false)

	run := func() map[string]any {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		FailErr(c, fmt.Errorf("db exploded: %w", ErrNotFound), gin.H{"conversationId": "abc"})
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, http.StatusNotFound, w.Code)
		return body
	}

	ExposeErrors(false)
	body := run()
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "resource not found", body["message"])
	assert.Equal(t, "abc", body["conversationId"])
	_, has := body["error"]
	assert.False(t, has)

	ExposeErrors(true)
	body = run()
	assert.Contains(t, body["error"], "db exploded")
}

func TestNewULID_Unique(t *testing.T) {
	a, b := NewULID(), NewULID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}
