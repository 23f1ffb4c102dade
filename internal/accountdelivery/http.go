// Package accountdelivery manages delivery layer of accounts.
package accountdelivery

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

// Service provides service layer interface needed by account delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package accountdelivery
type Service interface {
	Create(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error)
	Get(ctx context.Context, id int64) (domain.Account, error)
	ListForOwner(ctx context.Context, ownerID int64) ([]domain.Account, error)
	Deactivate(ctx context.Context, id int64) (domain.Account, error)
	Delete(ctx context.Context, id int64) error
}

// Handler facilitates account delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns account handler.
func NewHandler(as Service) *Handler {
	return &Handler{service: as}
}

type data struct {
	Account domain.Account `json:"account"`
}

type response struct {
	Data data `json:"data,omitempty"`
}

type listData struct {
	Accounts []domain.Account `json:"accounts"`
}

type listResponse struct {
	Data listData `json:"data,omitempty"`
}

type createRequest struct {
	Type domain.AccountType `json:"type" binding:"required"`
}

// Create handles http request to open an account for the caller.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req createRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, jsonresponse.Error(err))

		return
	}

	auth := middleware.GetAuthContext(gctx)

	account, err := h.service.Create(ctx, domain.CreateAccountParams{
		OwnerID: auth.UserID,
		Type:    req.Type,
	})
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{account}})
}

// Get handles http request to get one account.
func (h *Handler) Get(gctx *gin.Context) {
	account, _, ok := h.ownedAccount(gctx)
	if !ok {
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{account}})
}

// List handles http request to list the caller's active accounts.
func (h *Handler) List(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	auth := middleware.GetAuthContext(gctx)

	accounts, err := h.service.ListForOwner(ctx, auth.UserID)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, listResponse{Data: listData{accounts}})
}

// Deactivate handles http request to deactivate a zero-balance account.
func (h *Handler) Deactivate(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	account, _, ok := h.ownedAccount(gctx)
	if !ok {
		return
	}

	updated, err := h.service.Deactivate(ctx, account.ID)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{updated}})
}

// Delete handles http request to delete an account with no history.
func (h *Handler) Delete(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	account, _, ok := h.ownedAccount(gctx)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, account.ID); err != nil {
		writeError(gctx, err)
		return
	}

	gctx.Status(http.StatusNoContent)
}

// ownedAccount resolves the :id path param and enforces ownership,
// writing the error response itself on failure.
func (h *Handler) ownedAccount(gctx *gin.Context) (domain.Account, domain.AuthContext, bool) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	id, err := strconv.ParseInt(gctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, jsonresponse.Error(domain.ErrAccountNotFound))

		return domain.Account{}, domain.AuthContext{}, false
	}

	auth := middleware.GetAuthContext(gctx)

	account, err := h.service.Get(ctx, id)
	if err != nil {
		writeError(gctx, err)
		return domain.Account{}, domain.AuthContext{}, false
	}

	if !auth.CanAccess(account.OwnerID) {
		gctx.JSON(http.StatusUnauthorized, jsonresponse.Error(domain.ErrInvalidOwner))
		return domain.Account{}, domain.AuthContext{}, false
	}

	return account, auth, true
}

func writeError(gctx *gin.Context, err error) {
	l := zerolog.Ctx(gctx.Request.Context())
	l.Info().Err(err).Send()

	switch err {
	case domain.ErrAccountNotFound:
		gctx.JSON(http.StatusNotFound, jsonresponse.Error(err))
	case domain.ErrInvalidAccountType,
		domain.ErrBalanceNotZero,
		domain.ErrAccountHasTransactions:
		gctx.JSON(http.StatusBadRequest, jsonresponse.Error(err))
	case domain.ErrTooManyAccounts:
		gctx.JSON(http.StatusConflict, jsonresponse.Error(err))
	case domain.ErrInvalidOwner:
		gctx.JSON(http.StatusUnauthorized, jsonresponse.Error(err))
	default:
		gctx.JSON(http.StatusInternalServerError, jsonresponse.Error(errorspkg.ErrInternal))
	}
}
