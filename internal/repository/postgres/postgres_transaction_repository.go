package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finvault/transaction-service/internal/infrastructure/observability"
	"github.com/finvault/transaction-service/internal/models"
	pkgerrors "github.com/finvault/transaction-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateTransaction").Observe(time.Since(start).Seconds())
	}()

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return err
	}

	if tx.Kind != models.KindDeposit && tx.Kind != models.KindWithdraw && tx.Kind != models.KindTransfer {
		err = pkgerrors.ErrInvalidTransactionKind
		slog.Error("invalid transaction kind", "method", "Create", "kind", tx.Kind, "error", err)
		return err
	}

	if tx.State != models.StatePending {
		err = pkgerrors.ErrInvalidTransactionState
		slog.Error("transaction must be created PENDING", "method", "Create", "state", tx.State, "error", err)
		return err
	}

	if !tx.Amount.IsPositive() {
		err = fmt.Errorf("amount must be positive")
		slog.Error("amount must be positive", "method", "Create", "amount", tx.Amount, "error", err)
		return err
	}

	span.SetAttributes(
		attribute.String("transaction_id", tx.ID),
		attribute.String("kind", string(tx.Kind)),
		attribute.String("amount", tx.Amount.String()),
	)

	query := `INSERT INTO transactions (id, from_account_id, to_account_id, amount, kind, state) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query, tx.ID, tx.FromAccountID, tx.ToAccountID, tx.Amount, tx.Kind, tx.State).Scan(&tx.CreatedAt)
	if err != nil {
		slog.Error("failed to create transaction", "method", "Create", "transaction_id", tx.ID, "kind", tx.Kind, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "transaction_id", tx.ID, "kind", tx.Kind, "state", tx.State)
	return nil
}

func (r *PostgresTransactionRepository) UpdateState(ctx context.Context, id string, state models.TransactionState) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "UpdateTransactionState")
	span.SetAttributes(
		attribute.String("transaction_id", id),
		attribute.String("state", string(state)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("UpdateTransactionState", status).Inc()
		observability.RepositoryDuration.WithLabelValues("UpdateTransactionState").Observe(time.Since(start).Seconds())
	}()

	if state != models.StateSuccess && state != models.StateFailed {
		err = pkgerrors.ErrInvalidTransactionState
		slog.Error("only terminal states may be set", "method", "UpdateState", "state", state, "error", err)
		return err
	}

	// Terminal states are immutable: only a PENDING row can transition.
	query := `UPDATE transactions SET state = $2 WHERE id = $1 AND state = 'PENDING'`
	result, execErr := r.db.ExecContext(ctx, query, id, state)
	if execErr != nil {
		err = fmt.Errorf("failed to update transaction state: %w", execErr)
		slog.Error("failed to update transaction state", "method", "UpdateState", "transaction_id", id, "state", state, "error", execErr)
		return err
	}

	affected, raErr := result.RowsAffected()
	if raErr != nil {
		err = fmt.Errorf("failed to read rows affected: %w", raErr)
		return err
	}
	if affected == 0 {
		err = pkgerrors.ErrTransactionNotFound
		slog.Error("no pending transaction to update", "method", "UpdateState", "transaction_id", id, "state", state)
		return err
	}

	slog.Info("transaction state updated", "method", "UpdateState", "transaction_id", id, "state", state)
	return nil
}

func (r *PostgresTransactionRepository) UpdateAccounts(ctx context.Context, id, fromAccountID, toAccountID string) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "UpdateTransactionAccounts")
	span.SetAttributes(attribute.String("transaction_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("UpdateTransactionAccounts", status).Inc()
		observability.RepositoryDuration.WithLabelValues("UpdateTransactionAccounts").Observe(time.Since(start).Seconds())
	}()

	query := `UPDATE transactions SET from_account_id = $2, to_account_id = $3 WHERE id = $1`
	result, execErr := r.db.ExecContext(ctx, query, id, fromAccountID, toAccountID)
	if execErr != nil {
		err = fmt.Errorf("failed to update transaction accounts: %w", execErr)
		slog.Error("failed to update transaction accounts", "method", "UpdateAccounts", "transaction_id", id, "error", execErr)
		return err
	}

	affected, raErr := result.RowsAffected()
	if raErr != nil {
		err = fmt.Errorf("failed to read rows affected: %w", raErr)
		return err
	}
	if affected == 0 {
		err = pkgerrors.ErrTransactionNotFound
		slog.Error("transaction not found", "method", "UpdateAccounts", "transaction_id", id)
		return err
	}

	slog.Info("transaction accounts resolved", "method", "UpdateAccounts", "transaction_id", id, "from_account_id", fromAccountID, "to_account_id", toAccountID)
	return nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "GetTransactionByID")
	span.SetAttributes(attribute.String("transaction_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("GetTransactionByID", status).Inc()
		observability.RepositoryDuration.WithLabelValues("GetTransactionByID").Observe(time.Since(start).Seconds())
	}()

	var tx models.Transaction
	var fromID, toID sql.NullString
	query := `SELECT id, from_account_id, to_account_id, amount, kind, state, created_at FROM transactions WHERE id = $1`
	err = r.db.QueryRowContext(ctx, query, id).Scan(&tx.ID, &fromID, &toID, &tx.Amount, &tx.Kind, &tx.State, &tx.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		slog.Error("transaction not found", "method", "GetByID", "transaction_id", id)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}

	if fromID.Valid {
		tx.FromAccountID = &fromID.String
	}
	if toID.Valid {
		tx.ToAccountID = &toID.String
	}

	slog.Info("transaction retrieved", "method", "GetByID", "transaction_id", id, "kind", tx.Kind, "state", tx.State)
	return &tx, nil
}

func (r *PostgresTransactionRepository) ListByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "ListTransactionsByAccount")
	span.SetAttributes(attribute.String("account_id", accountID))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("ListTransactionsByAccount", status).Inc()
		observability.RepositoryDuration.WithLabelValues("ListTransactionsByAccount").Observe(time.Since(start).Seconds())
	}()

	query := `SELECT id, from_account_id, to_account_id, amount, kind, state, created_at FROM transactions WHERE from_account_id = $1 OR to_account_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		slog.Error("failed to list transactions", "method", "ListByAccount", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var fromID, toID sql.NullString
		if err = rows.Scan(&tx.ID, &fromID, &toID, &tx.Amount, &tx.Kind, &tx.State, &tx.CreatedAt); err != nil {
			slog.Error("failed to scan transaction row", "method", "ListByAccount", "account_id", accountID, "error", err)
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		if fromID.Valid {
			tx.FromAccountID = &fromID.String
		}
		if toID.Valid {
			tx.ToAccountID = &toID.String
		}
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}

	slog.Info("transactions listed", "method", "ListByAccount", "account_id", accountID, "count", len(transactions))
	return transactions, nil
}
