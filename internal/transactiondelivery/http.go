// Package transactiondelivery manages delivery layer of transactions.
//
// Handlers perform the ownership check the engine itself does not:
// the caller identity arrives pre-resolved from the gateway and is
// matched against the involved account before the orchestrator runs.
package transactiondelivery

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/go-petr/ledger-engine/internal/middleware"
	"github.com/go-petr/ledger-engine/pkg/errorspkg"
	"github.com/go-petr/ledger-engine/pkg/jsonresponse"
)

// IdempotencyKeyHeader carries the optional caller-supplied token that
// makes a retried request return the original result.
const IdempotencyKeyHeader = "Idempotency-Key"

// Service provides service layer interface needed by transaction delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package transactiondelivery
type Service interface {
	Deposit(ctx context.Context, auth domain.AuthContext, arg domain.DepositParams) (domain.TransactionResult, error)
	Withdraw(ctx context.Context, auth domain.AuthContext, arg domain.WithdrawParams) (domain.TransactionResult, error)
	Transfer(ctx context.Context, auth domain.AuthContext, arg domain.TransferParams) (domain.TransactionResult, error)
	Get(ctx context.Context, ref string) (domain.TransactionResult, error)
	ListForAccount(ctx context.Context, accountID int64) ([]domain.TransactionResult, error)
}

// AccountService provides the account lookups needed for ownership
// checks.
type AccountService interface {
	Get(ctx context.Context, id int64) (domain.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (domain.Account, error)
}

// Handler facilitates transaction delivery layer logic.
type Handler struct {
	service  Service
	accounts AccountService
}

// NewHandler returns transaction handler.
func NewHandler(ts Service, as AccountService) *Handler {
	return &Handler{
		service:  ts,
		accounts: as,
	}
}

type depositRequest struct {
	AccountNumber string `json:"account_number" binding:"required"`
	Amount        string `json:"amount" binding:"required,amount"`
	Description   string `json:"description"`
}

type withdrawRequest struct {
	AccountNumber string `json:"account_number" binding:"required"`
	Amount        string `json:"amount" binding:"required,amount"`
	Description   string `json:"description"`
}

type transferRequest struct {
	SourceAccountNumber string `json:"source_account_number" binding:"required"`
	TargetAccountNumber string `json:"target_account_number" binding:"required"`
	Amount              string `json:"amount" binding:"required,amount"`
	Description         string `json:"description"`
}

type data struct {
	Transaction domain.TransactionResult `json:"transaction"`
}

type response struct {
	Data data `json:"data,omitempty"`
}

type listData struct {
	Transactions []domain.TransactionResult `json:"transactions"`
}

type listResponse struct {
	Data listData `json:"data,omitempty"`
}

// Deposit handles http request to deposit money into an account.
func (h *Handler) Deposit(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req depositRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, jsonresponse.Error(err))

		return
	}

	auth := middleware.GetAuthContext(gctx)

	if !h.ownsAccount(gctx, auth, req.AccountNumber) {
		return
	}

	result, err := h.service.Deposit(ctx, auth, domain.DepositParams{
		AccountNumber:  req.AccountNumber,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: gctx.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{result}})
}

// Withdraw handles http request to withdraw money from an account.
func (h *Handler) Withdraw(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req withdrawRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, jsonresponse.Error(err))

		return
	}

	auth := middleware.GetAuthContext(gctx)

	if !h.ownsAccount(gctx, auth, req.AccountNumber) {
		return
	}

	result, err := h.service.Withdraw(ctx, auth, domain.WithdrawParams{
		AccountNumber:  req.AccountNumber,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: gctx.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{result}})
}

// Transfer handles http request to transfer money between two accounts.
func (h *Handler) Transfer(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req transferRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, jsonresponse.Error(err))

		return
	}

	auth := middleware.GetAuthContext(gctx)

	// Only the source account must belong to the caller.
	if !h.ownsAccount(gctx, auth, req.SourceAccountNumber) {
		return
	}

	result, err := h.service.Transfer(ctx, auth, domain.TransferParams{
		SourceAccountNumber: req.SourceAccountNumber,
		TargetAccountNumber: req.TargetAccountNumber,
		Amount:              req.Amount,
		Description:         req.Description,
		IdempotencyKey:      gctx.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{result}})
}

// Get handles http request to look up a transaction by reference number.
func (h *Handler) Get(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	auth := middleware.GetAuthContext(gctx)

	result, err := h.service.Get(ctx, gctx.Param("reference"))
	if err != nil {
		writeError(gctx, err)
		return
	}

	if !auth.Privileged && !h.involved(gctx, auth, result) {
		gctx.JSON(http.StatusUnauthorized, jsonresponse.Error(domain.ErrInvalidOwner))
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{result}})
}

// ListForAccount handles http request to list an account's transactions.
func (h *Handler) ListForAccount(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	accountID, err := strconv.ParseInt(gctx.Param("id"), 10, 64)
	if err != nil || accountID <= 0 {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, jsonresponse.Error(domain.ErrAccountNotFound))

		return
	}

	auth := middleware.GetAuthContext(gctx)

	account, err := h.accounts.Get(ctx, accountID)
	if err != nil {
		writeError(gctx, err)
		return
	}

	if !auth.CanAccess(account.OwnerID) {
		gctx.JSON(http.StatusUnauthorized, jsonresponse.Error(domain.ErrInvalidOwner))
		return
	}

	results, err := h.service.ListForAccount(ctx, accountID)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, listResponse{Data: listData{results}})
}

// ownsAccount writes the error response itself and reports whether the
// handler may proceed.
func (h *Handler) ownsAccount(gctx *gin.Context, auth domain.AuthContext, accountNumber string) bool {
	if auth.Privileged {
		return true
	}

	account, err := h.accounts.GetByNumber(gctx.Request.Context(), accountNumber)
	if err != nil {
		writeError(gctx, err)
		return false
	}

	if !auth.CanAccess(account.OwnerID) {
		gctx.JSON(http.StatusUnauthorized, jsonresponse.Error(domain.ErrInvalidOwner))
		return false
	}

	return true
}

func (h *Handler) involved(gctx *gin.Context, auth domain.AuthContext, result domain.TransactionResult) bool {
	for _, number := range []string{result.SourceAccountNumber, result.TargetAccountNumber} {
		if number == "" {
			continue
		}

		account, err := h.accounts.GetByNumber(gctx.Request.Context(), number)
		if err == nil && account.OwnerID == auth.UserID {
			return true
		}
	}

	return false
}

func writeError(gctx *gin.Context, err error) {
	l := zerolog.Ctx(gctx.Request.Context())
	l.Info().Err(err).Send()

	switch err {
	case domain.ErrAccountNotFound, domain.ErrTransactionNotFound:
		gctx.JSON(http.StatusNotFound, jsonresponse.Error(err))
	case domain.ErrInvalidAmount,
		domain.ErrSelfTransfer,
		domain.ErrAccountInactive,
		domain.ErrInsufficientFunds:
		gctx.JSON(http.StatusBadRequest, jsonresponse.Error(err))
	case domain.ErrInvalidOwner:
		gctx.JSON(http.StatusUnauthorized, jsonresponse.Error(err))
	case domain.ErrLockTimeout:
		gctx.JSON(http.StatusServiceUnavailable, jsonresponse.Error(err))
	default:
		gctx.JSON(http.StatusInternalServerError, jsonresponse.Error(errorspkg.ErrInternal))
	}
}
