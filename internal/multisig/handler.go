package multisig

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/keymgmt"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/rpc"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/utils"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/signer"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/transaction"
)

type multisigHandler struct {
	multisig *Service
}

type addRequestBody struct {
	Request Request `json:"request" binding:"required"`
	Confirm bool    `json:"confirm"`
}

var registerProblems sync.Once

func RegisterRoutes(rg *gin.RouterGroup, service *Service) {
	registerProblems.Do(RegisterSigningProblems)

	handler := multisigHandler{multisig: service}

	routes := rg.Group("/multisig/:accountId")
	routes.GET("/requests", handler.getRequests)
	routes.POST("/requests", handler.addRequest)
	routes.POST("/requests/:requestId/confirm", handler.confirm)
	routes.DELETE("/requests/:requestId", handler.deleteRequest)

	rg.GET("/sign/callback", handler.signCallback)
}

// RegisterSigningProblems maps the signing and submission errors shared by
// every write endpoint.
func RegisterSigningProblems() {
	reject.RegisterProblem(keymgmt.ErrNotConnected, "Account not connected", http.StatusPreconditionRequired, "error.signing.not-connected")
	reject.RegisterProblem(ErrInvalidRequest, "Invalid multisig request", http.StatusBadRequest, "error.multisig.invalid-request")
	reject.RegisterProblem(signer.ErrNoKeyAvailable, "No key available", http.StatusConflict, "error.signing.no-key")
	reject.RegisterProblem(signer.ErrSigningRejected, "Signing rejected", http.StatusConflict, "error.signing.rejected")
	reject.RegisterProblem(signer.ErrDeviceUnavailable, "Signing device unavailable", http.StatusServiceUnavailable, "error.signing.device-unavailable")
	reject.RegisterProblem(signer.ErrProtocolError, "Signing device protocol error", http.StatusBadGateway, "error.signing.protocol")
	reject.RegisterProblem(transaction.ErrAccessKeyNotFound, "Access key not found on chain", http.StatusConflict, "error.signing.access-key-not-found")
	reject.RegisterProblem(transaction.ErrNonceConflict, "Nonce already used", http.StatusConflict, "error.signing.nonce-conflict")
	reject.RegisterProblem(transaction.ErrTransactionFailed, "Transaction failed", http.StatusFailedDependency, "error.signing.transaction-failed")
	reject.RegisterProblem(rpc.ErrUnknownAccount, "Account does not exist", http.StatusNotFound, "error.chain.unknown-account")
}

func (h multisigHandler) getRequests(c *gin.Context) {
	page, problem := utils.NewPageRequest(c)
	if problem != nil {
		reject.Abort(c, problem)
		return
	}
	view, err := h.multisig.RequestsPage(c.Request.Context(), accountIDParam(c), page)
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h multisigHandler) addRequest(c *gin.Context) {
	var body addRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		reject.Abort(c, &reject.ProblemWithTrace{Problem: reject.RequestValidationProblem(), Cause: err})
		return
	}
	event, err := h.multisig.AddRequest(c.Request.Context(), accountIDParam(c), body.Request, body.Confirm)
	respondExecution(c, event, err)
}

func (h multisigHandler) confirm(c *gin.Context) {
	requestID, ok := requestIDParam(c)
	if !ok {
		return
	}
	event, err := h.multisig.Confirm(c.Request.Context(), accountIDParam(c), requestID)
	respondExecution(c, event, err)
}

func (h multisigHandler) deleteRequest(c *gin.Context) {
	requestID, ok := requestIDParam(c)
	if !ok {
		return
	}
	event, err := h.multisig.DeleteRequest(c.Request.Context(), accountIDParam(c), requestID)
	respondExecution(c, event, err)
}

func (h multisigHandler) signCallback(c *gin.Context) {
	res, err := signer.ResumeFromCallback(c.Request.URL.Query())
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}
	log.Info().
		Str("flow_id", res.FlowID).
		Str("state", string(res.State)).
		Str("pending", res.Pending.Kind).
		Msg("Remote wallet returned")

	h.multisig.Resume(res)
	c.JSON(http.StatusOK, res)
}

func accountIDParam(c *gin.Context) chain.AccountID {
	return chain.NormalizeAccountID(c.Param("accountId"))
}

func requestIDParam(c *gin.Context) (uint64, bool) {
	requestID, err := strconv.ParseUint(c.Param("requestId"), 10, 64)
	if err != nil {
		reject.Abort(c, &reject.ProblemWithTrace{Problem: reject.RequestParamsProblem(), Cause: err})
		return 0, false
	}
	return requestID, true
}

// respondExecution answers 202 with the wallet url when signing suspended.
func respondExecution(c *gin.Context, event *transaction.OutcomeEvent, err error) {
	var redirect *signer.RedirectRequired
	if errors.As(err, &redirect) {
		c.JSON(http.StatusAccepted, gin.H{"redirectUrl": redirect.URL})
		return
	}
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}
	c.JSON(http.StatusOK, event)
}
