package lockup

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/rpc"
)

type lockupHandler struct {
	lockup *Service
}

type vestingSearchRequest struct {
	Start     string `json:"start" binding:"required"`
	Cliff     string `json:"cliff" binding:"required"`
	End       string `json:"end" binding:"required"`
	AuthToken string `json:"authToken" binding:"required"`
}

func RegisterRoutes(rg *gin.RouterGroup, service *Service) {
	reject.RegisterProblem(ErrPrivateScheduleNotFound, "Incorrect seed or date range", http.StatusUnprocessableEntity, "error.lockup.private-schedule-not-found")
	reject.RegisterProblem(ErrNotPrivateSchedule, "No private vesting schedule", http.StatusConflict, "error.lockup.not-private-schedule")
	reject.RegisterProblem(ErrStateDecode, "Unreadable lockup state", http.StatusUnprocessableEntity, "error.lockup.state-decode")
	reject.RegisterProblem(rpc.ErrUnknownAccount, "Account does not exist", http.StatusNotFound, "error.chain.unknown-account")

	handler := lockupHandler{lockup: service}

	routes := rg.Group("/lockup/:accountId")
	routes.GET("", handler.getBreakdown)
	routes.POST("/vesting", handler.findPrivateSchedule)
}

func (h lockupHandler) getBreakdown(c *gin.Context) {
	breakdown, err := h.lockup.Breakdown(c.Request.Context(), chain.NormalizeAccountID(c.Param("accountId")))
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (h lockupHandler) findPrivateSchedule(c *gin.Context) {
	var body vestingSearchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		reject.Abort(c, &reject.ProblemWithTrace{Problem: reject.RequestValidationProblem(), Cause: err})
		return
	}
	guess, err := body.guess()
	if err != nil {
		reject.Abort(c, &reject.ProblemWithTrace{Problem: reject.RequestValidationProblem(), Cause: err})
		return
	}

	breakdown, err := h.lockup.ResolvePrivateSchedule(c.Request.Context(), chain.NormalizeAccountID(c.Param("accountId")), guess, body.AuthToken)
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (r vestingSearchRequest) guess() (ScheduleGuess, error) {
	var (
		guess ScheduleGuess
		err   error
	)
	if guess.Start, err = ParseDate(r.Start); err != nil {
		return guess, err
	}
	if guess.Cliff, err = ParseDate(r.Cliff); err != nil {
		return guess, err
	}
	guess.End, err = ParseDate(r.End)
	return guess, err
}

// ParseDate accepts RFC3339 timestamps or bare dates taken as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid date %q", s)
	}
	return t, nil
}
