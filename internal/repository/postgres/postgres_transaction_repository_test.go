package repository_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/finvault/transaction-service/internal/models"
	repository "github.com/finvault/transaction-service/internal/repository/postgres"
	pkgerrors "github.com/finvault/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func pendingTransaction(id string) *models.Transaction {
	to := "acc-1"
	return &models.Transaction{
		ID:          id,
		ToAccountID: &to,
		Amount:      decimal.NewFromInt(500),
		Kind:        models.KindDeposit,
		State:       models.StatePending,
	}
}

func TestPostgresTransactionRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	t.Run("NilTransaction", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrNilTransaction)
	})

	t.Run("InvalidKind", func(t *testing.T) {
		tx := pendingTransaction("tx-1")
		tx.Kind = "invalid"
		err := repo.Create(ctx, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionKind)
	})

	t.Run("NotPending", func(t *testing.T) {
		tx := pendingTransaction("tx-1")
		tx.State = models.StateSuccess
		err := repo.Create(ctx, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionState)
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		tx := pendingTransaction("tx-1")
		tx.Amount = decimal.Zero
		err := repo.Create(ctx, tx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "amount must be positive")
	})

	t.Run("Success", func(t *testing.T) {
		tx := pendingTransaction("tx-1")
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions (id, from_account_id, to_account_id, amount, kind, state) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`)).
			WithArgs(tx.ID, tx.FromAccountID, tx.ToAccountID, tx.Amount, tx.Kind, tx.State).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

		err := repo.Create(ctx, tx)
		assert.NoError(t, err)
		assert.WithinDuration(t, createdAt, tx.CreatedAt, time.Second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		tx := pendingTransaction("tx-1")
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions`)).
			WithArgs(tx.ID, tx.FromAccountID, tx.ToAccountID, tx.Amount, tx.Kind, tx.State).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(ctx, tx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_UpdateState(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	t.Run("NonTerminalState", func(t *testing.T) {
		err := repo.UpdateState(ctx, "tx-1", models.StatePending)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionState)
	})

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE transactions SET state = $2 WHERE id = $1 AND state = 'PENDING'`)).
			WithArgs("tx-1", models.StateSuccess).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateState(ctx, "tx-1", models.StateSuccess)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyTerminal", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE transactions SET state = $2`)).
			WithArgs("tx-1", models.StateFailed).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateState(ctx, "tx-1", models.StateFailed)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_UpdateAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE transactions SET from_account_id = $2, to_account_id = $3 WHERE id = $1`)).
			WithArgs("tx-1", "acc-1", "acc-2").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateAccounts(ctx, "tx-1", "acc-1", "acc-2")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE transactions SET from_account_id = $2`)).
			WithArgs("missing", "acc-1", "acc-2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateAccounts(ctx, "missing", "acc-1", "acc-2")
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
	})
}

func TestPostgresTransactionRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	columns := []string{"id", "from_account_id", "to_account_id", "amount", "kind", "state", "created_at"}

	t.Run("Success", func(t *testing.T) {
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, from_account_id, to_account_id, amount, kind, state, created_at FROM transactions WHERE id = $1`)).
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("tx-1", nil, "acc-1", "500", "DEPOSIT", "SUCCESS", createdAt))

		tx, err := repo.GetByID(ctx, "tx-1")
		assert.NoError(t, err)
		assert.Equal(t, "tx-1", tx.ID)
		assert.Nil(t, tx.FromAccountID)
		assert.NotNil(t, tx.ToAccountID)
		assert.Equal(t, "acc-1", *tx.ToAccountID)
		assert.True(t, tx.Amount.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, models.StateSuccess, tx.State)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, from_account_id, to_account_id`)).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(columns))

		tx, err := repo.GetByID(ctx, "missing")
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
	})
}

func TestPostgresTransactionRepository_ListByAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	columns := []string{"id", "from_account_id", "to_account_id", "amount", "kind", "state", "created_at"}

	t.Run("MatchesEitherSide", func(t *testing.T) {
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE from_account_id = $1 OR to_account_id = $1`)).
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("tx-2", "acc-1", "acc-2", "250", "TRANSFER", "SUCCESS", createdAt).
				AddRow("tx-1", nil, "acc-1", "500", "DEPOSIT", "SUCCESS", createdAt.Add(-time.Hour)))

		transactions, err := repo.ListByAccount(ctx, "acc-1")
		assert.NoError(t, err)
		assert.Len(t, transactions, 2)
		assert.Equal(t, models.KindTransfer, transactions[0].Kind)
		assert.Equal(t, models.KindDeposit, transactions[1].Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE from_account_id = $1 OR to_account_id = $1`)).
			WithArgs("acc-9").
			WillReturnRows(sqlmock.NewRows(columns))

		transactions, err := repo.ListByAccount(ctx, "acc-9")
		assert.NoError(t, err)
		assert.Empty(t, transactions)
	})
}
