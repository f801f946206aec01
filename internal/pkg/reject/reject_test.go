package reject

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

func TestAbortWritesProblem(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cause := errors.New("boom")
	router := gin.New()
	router.GET("/x", func(c *gin.Context) {
		Abort(c, NewProblem().
			WithTitle("Conflict").
			WithStatus(http.StatusConflict).
			WithCode("error.test.conflict").
			WithParam("account", "alice.near").
			Trace(cause))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	var body Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error.test.conflict", body.Code)
	assert.Equal(t, "alice.near", body.Params["account"])
}

func TestProblemWithTraceUnwraps(t *testing.T) {
	cause := errors.New("boom")
	p := NotFoundProblem()
	trace := &ProblemWithTrace{Problem: p, Cause: cause}
	assert.ErrorIs(t, trace, cause)
	assert.Contains(t, trace.Error(), "error.generic.not-found")
}

var errRegistered = errors.New("registered")

func TestFromErrorUsesRegisteredProblem(t *testing.T) {
	RegisterProblem(errRegistered, "Registered", http.StatusConflict, "error.test.registered")

	trace := FromError(fmt.Errorf("wrapped: %w", errRegistered))
	assert.Equal(t, http.StatusConflict, trace.Problem.Status)
	assert.Equal(t, "error.test.registered", trace.Problem.Code)
	assert.Contains(t, trace.Problem.Detail, "wrapped")

	unknown := FromError(errors.New("other"))
	assert.Equal(t, http.StatusInternalServerError, unknown.Problem.Status)

	existing := &ProblemWithTrace{Problem: NotFoundProblem()}
	assert.Same(t, existing, FromError(fmt.Errorf("x: %w", existing)))
}
