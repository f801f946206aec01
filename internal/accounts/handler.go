package accounts

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/discovery"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/multisig"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/signer"
)

type accountsHandler struct {
	accounts *Service
}

type ledgerConnectRequest struct {
	DerivationPath string `json:"derivationPath"`
}

type keyImportRequest struct {
	SecretKey string `json:"secretKey" binding:"required"`
}

type walletCallbackResponse struct {
	State       signer.State    `json:"state"`
	FlowID      string          `json:"flowId"`
	AccountID   chain.AccountID `json:"accountId,omitempty"`
	ErrorCode   string          `json:"errorCode,omitempty"`
	Connections []Connection    `json:"connections"`
}

func RegisterRoutes(rg *gin.RouterGroup, service *Service) {
	multisig.RegisterSigningProblems()
	reject.RegisterProblem(discovery.ErrIndexerUnavailable, "Account indexers unavailable", http.StatusBadGateway, "error.discovery.indexer-unavailable")
	reject.RegisterProblem(ErrInvalidDerivationPath, "Invalid derivation path", http.StatusBadRequest, "error.accounts.invalid-derivation-path")
	reject.RegisterProblem(chain.ErrInvalidKey, "Invalid key", http.StatusBadRequest, "error.accounts.invalid-key")

	handler := accountsHandler{accounts: service}

	routes := rg.Group("/accounts")
	routes.POST("/ledger", handler.connectLedger)
	routes.POST("/key", handler.importKey)
	routes.GET("/wallet", handler.walletLogin)
	routes.GET("/wallet/callback", handler.walletCallback)
	routes.GET("/:accountId/keys", handler.signingAuthority)
}

func (h accountsHandler) connectLedger(c *gin.Context) {
	var body ledgerConnectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			reject.Abort(c, &reject.ProblemWithTrace{Problem: reject.RequestValidationProblem(), Cause: err})
			return
		}
	}

	connection, err := h.accounts.ConnectLedger(c.Request.Context(), body.DerivationPath)
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}
	c.JSON(http.StatusOK, connection)
}

func (h accountsHandler) importKey(c *gin.Context) {
	var body keyImportRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		reject.Abort(c, &reject.ProblemWithTrace{Problem: reject.RequestValidationProblem(), Cause: err})
		return
	}

	connection, err := h.accounts.ImportKey(c.Request.Context(), body.SecretKey)
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}
	c.JSON(http.StatusOK, connection)
}

func (h accountsHandler) walletLogin(c *gin.Context) {
	loginURL, err := h.accounts.WalletLoginURL(c.Query("returnPath"))
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}
	c.Redirect(http.StatusFound, loginURL)
}

func (h accountsHandler) walletCallback(c *gin.Context) {
	res, err := signer.ResumeFromCallback(c.Request.URL.Query())
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}

	connections, err := h.accounts.CompleteWalletConnect(c.Request.Context(), res)
	if err != nil {
		reject.Abort(c, reject.FromError(err))
		return
	}
	log.Info().
		Str("flow_id", res.FlowID).
		Str("state", string(res.State)).
		Int("keys", len(connections)).
		Msg("Wallet connect returned")

	// Only same-origin paths are followed.
	if returnPath := res.Pending.ReturnPath; strings.HasPrefix(returnPath, "/") && !strings.HasPrefix(returnPath, "//") {
		c.Redirect(http.StatusFound, returnPath)
		return
	}

	if connections == nil {
		connections = []Connection{}
	}
	c.JSON(http.StatusOK, walletCallbackResponse{
		State:       res.State,
		FlowID:      res.FlowID,
		AccountID:   res.AccountID,
		ErrorCode:   res.ErrorCode,
		Connections: connections,
	})
}

func (h accountsHandler) signingAuthority(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"accountId": chain.NormalizeAccountID(c.Param("accountId")),
		"keys":      h.accounts.SigningAuthority(c.Param("accountId")),
	})
}
