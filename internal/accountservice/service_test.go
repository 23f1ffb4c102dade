package accountservice

import (
	"context"
	"testing"
	"time"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/go-petr/ledger-engine/pkg/errorspkg"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func testAccount(ownerID int64) domain.Account {
	return domain.Account{
		ID:            1,
		AccountNumber: "ACC0000001234",
		OwnerID:       ownerID,
		Type:          domain.Checking,
		Balance:       "0.00",
		IsActive:      true,
		CreatedAt:     time.Now().Truncate(time.Second).UTC(),
		UpdatedAt:     time.Now().Truncate(time.Second).UTC(),
	}
}

func TestCreate(t *testing.T) {
	ownerID := int64(1)
	account := testAccount(ownerID)

	testCases := []struct {
		name          string
		arg           domain.CreateAccountParams
		buildStubs    func(repo *MockRepo)
		checkResponse func(got domain.Account, err error)
	}{
		{
			name: "InvalidType",
			arg:  domain.CreateAccountParams{OwnerID: ownerID, Type: "CRYPTO"},
			buildStubs: func(repo *MockRepo) {
				repo.EXPECT().CountActiveForOwner(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(got domain.Account, err error) {
				require.Empty(t, got)
				require.ErrorIs(t, err, domain.ErrInvalidAccountType)
			},
		},
		{
			name: "TooManyAccounts",
			arg:  domain.CreateAccountParams{OwnerID: ownerID, Type: domain.Checking},
			buildStubs: func(repo *MockRepo) {
				repo.EXPECT().CountActiveForOwner(gomock.Any(), gomock.Eq(ownerID)).
					Times(1).
					Return(int64(3), nil)
				repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(got domain.Account, err error) {
				require.Empty(t, got)
				require.ErrorIs(t, err, domain.ErrTooManyAccounts)
			},
		},
		{
			name: "CountError",
			arg:  domain.CreateAccountParams{OwnerID: ownerID, Type: domain.Checking},
			buildStubs: func(repo *MockRepo) {
				repo.EXPECT().CountActiveForOwner(gomock.Any(), gomock.Eq(ownerID)).
					Times(1).
					Return(int64(0), errorspkg.ErrInternal)
			},
			checkResponse: func(got domain.Account, err error) {
				require.Empty(t, got)
				require.ErrorIs(t, err, errorspkg.ErrInternal)
			},
		},
		{
			name: "OK",
			arg:  domain.CreateAccountParams{OwnerID: ownerID, Type: domain.Checking},
			buildStubs: func(repo *MockRepo) {
				repo.EXPECT().CountActiveForOwner(gomock.Any(), gomock.Eq(ownerID)).
					Times(1).
					Return(int64(1), nil)
				repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(account, nil)
			},
			checkResponse: func(got domain.Account, err error) {
				require.NoError(t, err)
				require.Equal(t, account, got)
			},
		},
		{
			name: "NumberCollisionRegenerated",
			arg:  domain.CreateAccountParams{OwnerID: ownerID, Type: domain.Savings},
			buildStubs: func(repo *MockRepo) {
				repo.EXPECT().CountActiveForOwner(gomock.Any(), gomock.Eq(ownerID)).
					Times(1).
					Return(int64(0), nil)

				first := repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(domain.Account{}, domain.ErrDuplicateAccountNumber)
				repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					After(first).
					Return(account, nil)
			},
			checkResponse: func(got domain.Account, err error) {
				require.NoError(t, err)
				require.Equal(t, account, got)
			},
		},
		{
			name: "NumberCollisionExhausted",
			arg:  domain.CreateAccountParams{OwnerID: ownerID, Type: domain.Savings},
			buildStubs: func(repo *MockRepo) {
				repo.EXPECT().CountActiveForOwner(gomock.Any(), gomock.Eq(ownerID)).
					Times(1).
					Return(int64(0), nil)
				repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(5).
					Return(domain.Account{}, domain.ErrDuplicateAccountNumber)
			},
			checkResponse: func(got domain.Account, err error) {
				require.Empty(t, got)
				require.ErrorIs(t, err, domain.ErrDuplicateAccountNumber)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			ledger := NewMockLedger(ctrl)
			tc.buildStubs(repo)

			got, err := New(repo, ledger).Create(context.Background(), tc.arg)
			tc.checkResponse(got, err)
		})
	}
}

func TestDelete(t *testing.T) {
	testCases := []struct {
		name       string
		buildStubs func(repo *MockRepo, ledger *MockLedger)
		wantErr    error
	}{
		{
			name: "HasTransactions",
			buildStubs: func(repo *MockRepo, ledger *MockLedger) {
				ledger.EXPECT().ListForAccount(gomock.Any(), gomock.Eq(int64(1))).
					Times(1).
					Return([]domain.Transaction{{ID: 1}}, nil)
				repo.EXPECT().Delete(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrAccountHasTransactions,
		},
		{
			name: "LedgerError",
			buildStubs: func(repo *MockRepo, ledger *MockLedger) {
				ledger.EXPECT().ListForAccount(gomock.Any(), gomock.Eq(int64(1))).
					Times(1).
					Return(nil, errorspkg.ErrInternal)
			},
			wantErr: errorspkg.ErrInternal,
		},
		{
			name: "NonZeroBalance",
			buildStubs: func(repo *MockRepo, ledger *MockLedger) {
				ledger.EXPECT().ListForAccount(gomock.Any(), gomock.Eq(int64(1))).
					Times(1).
					Return(nil, nil)
				repo.EXPECT().Delete(gomock.Any(), gomock.Eq(int64(1))).
					Times(1).
					Return(domain.ErrBalanceNotZero)
			},
			wantErr: domain.ErrBalanceNotZero,
		},
		{
			name: "OK",
			buildStubs: func(repo *MockRepo, ledger *MockLedger) {
				ledger.EXPECT().ListForAccount(gomock.Any(), gomock.Eq(int64(1))).
					Times(1).
					Return(nil, nil)
				repo.EXPECT().Delete(gomock.Any(), gomock.Eq(int64(1))).
					Times(1).
					Return(nil)
			},
			wantErr: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			ledger := NewMockLedger(ctrl)
			tc.buildStubs(repo, ledger)

			err := New(repo, ledger).Delete(context.Background(), 1)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDeactivate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := NewMockRepo(ctrl)
	ledger := NewMockLedger(ctrl)
	service := New(repo, ledger)

	account := testAccount(1)
	account.IsActive = false

	repo.EXPECT().Deactivate(gomock.Any(), gomock.Eq(account.ID)).
		Times(1).
		Return(account, nil)

	got, err := service.Deactivate(context.Background(), account.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	repo.EXPECT().Deactivate(gomock.Any(), gomock.Eq(account.ID)).
		Times(1).
		Return(domain.Account{}, domain.ErrBalanceNotZero)

	_, err = service.Deactivate(context.Background(), account.ID)
	require.ErrorIs(t, err, domain.ErrBalanceNotZero)
}
