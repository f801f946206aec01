package reject

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ProblemWithTrace pairs the problem sent to the client with the error that
// caused it, which is only logged.
type ProblemWithTrace struct {
	Problem Problem
	Cause   error
}

func (p *ProblemWithTrace) Error() string {
	if p.Cause != nil {
		return p.Problem.Code + ": " + p.Cause.Error()
	}
	return p.Problem.Code
}

func (p *ProblemWithTrace) Unwrap() error {
	return p.Cause
}

// Abort logs the cause and writes the problem as the response.
func Abort(c *gin.Context, p *ProblemWithTrace) {
	event := log.Warn()
	if p.Problem.Status >= 500 {
		event = log.Error()
	}
	event.Err(p.Cause).
		Str("path", c.Request.URL.Path).
		Str("code", p.Problem.Code).
		Msg(p.Problem.Title)
	c.AbortWithStatusJSON(p.Problem.Status, p.Problem)
}
