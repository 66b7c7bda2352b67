package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/finvault/transaction-service/internal/events"
	"github.com/finvault/transaction-service/internal/infrastructure/identity"
	"github.com/finvault/transaction-service/internal/infrastructure/ledger"
	"github.com/finvault/transaction-service/internal/models"
	"github.com/finvault/transaction-service/internal/repository"
	pkgerrors "github.com/finvault/transaction-service/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TransactionService orchestrates deposits, withdrawals and transfers across
// the external Account and User services. Every attempt is recorded PENDING
// before the first outbound call and reaches exactly one terminal state
// before the method returns.
type TransactionService interface {
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*models.Transaction, error)
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (*models.Transaction, error)
	Transfer(ctx context.Context, fromAccountNumber, toAccountNumber string, amount decimal.Decimal) (*models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Transaction, error)
}

type transactionService struct {
	transactions repository.TransactionRepository
	ledger       ledger.AccountLedger
	identity     identity.Provider
	publisher    events.EventPublisher
}

func NewTransactionService(
	transactions repository.TransactionRepository,
	accountLedger ledger.AccountLedger,
	identityProvider identity.Provider,
	publisher events.EventPublisher,
) *transactionService {
	return &transactionService{
		transactions: transactions,
		ledger:       accountLedger,
		identity:     identityProvider,
		publisher:    publisher,
	}
}

func (s *transactionService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "Deposit")
	span.SetAttributes(attribute.String("account_id", accountID))
	defer span.End()

	tx, err := s.begin(ctx, models.KindDeposit, nil, &accountID, amount)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, s.fail(ctx, span, tx, asProcessing(err))
	}

	if err := s.checkKyc(ctx, account.UserID); err != nil {
		return nil, s.fail(ctx, span, tx, err)
	}

	if _, err := s.ledger.Deposit(ctx, accountID, tx.ID, amount); err != nil {
		return nil, s.fail(ctx, span, tx, asProcessing(err))
	}

	if err := s.succeed(ctx, tx); err != nil {
		return nil, s.fail(ctx, span, tx, err)
	}

	s.publisher.Publish(events.Event{
		TransactionID: tx.ID,
		UserID:        account.UserID,
		AccountID:     account.AccountID,
		Amount:        amount,
		Kind:          string(tx.Kind),
		State:         string(tx.State),
		Message: fmt.Sprintf("A deposit of %s has been made to your account %s. Transaction ID: %s",
			amount, account.AccountNumber, tx.ID),
	})

	slog.Info("deposit completed", "transaction_id", tx.ID, "account_id", accountID, "amount", amount)
	return tx, nil
}

func (s *transactionService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "Withdraw")
	span.SetAttributes(attribute.String("account_id", accountID))
	defer span.End()

	tx, err := s.begin(ctx, models.KindWithdraw, &accountID, nil, amount)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, s.fail(ctx, span, tx, asProcessing(err))
	}

	if err := s.checkKyc(ctx, account.UserID); err != nil {
		return nil, s.fail(ctx, span, tx, err)
	}

	// Optimistic early rejection only: the Account service re-validates the
	// balance at apply time and remains the authority for overdrafts.
	if account.Balance.LessThan(amount) {
		err := fmt.Errorf("%w: account %s", pkgerrors.ErrInsufficientFunds, accountID)
		return nil, s.fail(ctx, span, tx, err)
	}

	if _, err := s.ledger.Withdraw(ctx, accountID, tx.ID, amount); err != nil {
		return nil, s.fail(ctx, span, tx, asProcessing(err))
	}

	if err := s.succeed(ctx, tx); err != nil {
		return nil, s.fail(ctx, span, tx, err)
	}

	s.publisher.Publish(events.Event{
		TransactionID: tx.ID,
		UserID:        account.UserID,
		AccountID:     account.AccountID,
		Amount:        amount,
		Kind:          string(tx.Kind),
		State:         string(tx.State),
		Message: fmt.Sprintf("A withdrawal of %s has been made from your account %s. Transaction ID: %s",
			amount, account.AccountNumber, tx.ID),
	})

	slog.Info("withdrawal completed", "transaction_id", tx.ID, "account_id", accountID, "amount", amount)
	return tx, nil
}

func (s *transactionService) Transfer(ctx context.Context, fromAccountNumber, toAccountNumber string, amount decimal.Decimal) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "Transfer")
	defer span.End()

	// Account references start unresolved; the request arrives keyed by
	// human-facing account numbers.
	tx, err := s.begin(ctx, models.KindTransfer, nil, nil, amount)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	source, err := s.ledger.GetAccountByNumber(ctx, fromAccountNumber)
	if err != nil {
		return nil, s.fail(ctx, span, tx, asProcessing(notFoundWithNumber(err, fromAccountNumber)))
	}
	target, err := s.ledger.GetAccountByNumber(ctx, toAccountNumber)
	if err != nil {
		return nil, s.fail(ctx, span, tx, asProcessing(notFoundWithNumber(err, toAccountNumber)))
	}

	// Re-persist with resolved ids so the audit record is queryable by
	// internal account id.
	if err := s.transactions.UpdateAccounts(ctx, tx.ID, source.AccountID, target.AccountID); err != nil {
		return nil, s.fail(ctx, span, tx, fmt.Errorf("%w: failed to resolve transfer accounts: %v", pkgerrors.ErrInternal, err))
	}
	tx.FromAccountID = &source.AccountID
	tx.ToAccountID = &target.AccountID

	if err := s.checkKyc(ctx, source.UserID); err != nil {
		return nil, s.fail(ctx, span, tx, err)
	}
	if err := s.checkKyc(ctx, target.UserID); err != nil {
		return nil, s.fail(ctx, span, tx, err)
	}

	if source.AccountID == target.AccountID {
		err := fmt.Errorf("%w: cannot transfer funds to the same account", pkgerrors.ErrInvalidTransaction)
		return nil, s.fail(ctx, span, tx, err)
	}

	if source.Balance.LessThan(amount) {
		err := fmt.Errorf("%w: source account %s", pkgerrors.ErrInsufficientFunds, fromAccountNumber)
		return nil, s.fail(ctx, span, tx, err)
	}

	if _, err := s.ledger.Withdraw(ctx, source.AccountID, tx.ID, amount); err != nil {
		return nil, s.fail(ctx, span, tx, asProcessing(err))
	}

	if _, err := s.ledger.Deposit(ctx, target.AccountID, tx.ID, amount); err != nil {
		// The source debit is already applied and is not reversed here:
		// the discrepancy requires manual reconciliation.
		slog.Error("ledger inconsistency: withdraw applied but deposit failed, manual reconciliation required",
			"transaction_id", tx.ID,
			"from_account_id", source.AccountID,
			"to_account_id", target.AccountID,
			"amount", amount,
			"error", err)
		return nil, s.fail(ctx, span, tx, asProcessing(err))
	}

	if err := s.succeed(ctx, tx); err != nil {
		return nil, s.fail(ctx, span, tx, err)
	}

	s.publisher.Publish(events.Event{
		TransactionID: tx.ID,
		UserID:        source.UserID,
		AccountID:     source.AccountID,
		Amount:        amount,
		Kind:          string(tx.Kind),
		State:         string(tx.State),
		Message: fmt.Sprintf("A transfer of %s has been made from your account %s to %s. Transaction ID: %s",
			amount, source.AccountNumber, target.AccountNumber, tx.ID),
	})
	s.publisher.Publish(events.Event{
		TransactionID: tx.ID,
		UserID:        target.UserID,
		AccountID:     target.AccountID,
		Amount:        amount,
		Kind:          string(tx.Kind),
		State:         string(tx.State),
		Message: fmt.Sprintf("You have received %s in your account %s from %s. Transaction ID: %s",
			amount, target.AccountNumber, source.AccountNumber, tx.ID),
	})

	slog.Info("transfer completed",
		"transaction_id", tx.ID,
		"from_account_id", source.AccountID,
		"to_account_id", target.AccountID,
		"amount", amount)
	return tx, nil
}

func (s *transactionService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "GetTransaction")
	defer span.End()

	return s.transactions.GetByID(ctx, id)
}

func (s *transactionService) ListByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "ListTransactionsByAccount")
	defer span.End()

	return s.transactions.ListByAccount(ctx, accountID)
}

// begin validates the amount and persists the PENDING audit row before any
// external call is attempted.
func (s *transactionService) begin(ctx context.Context, kind models.TransactionKind, fromAccountID, toAccountID *string, amount decimal.Decimal) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidTransaction)
	}

	tx := &models.Transaction{
		ID:            uuid.NewString(),
		FromAccountID: fromAccountID,
		ToAccountID:   toAccountID,
		Amount:        amount,
		Kind:          kind,
		State:         models.StatePending,
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		slog.Error("failed to record pending transaction", "kind", kind, "error", err)
		return nil, fmt.Errorf("%w: failed to record transaction", pkgerrors.ErrInternal)
	}
	return tx, nil
}

// checkKyc gates the transaction on the owner's verification status. Any
// identity lookup failure fails closed.
func (s *transactionService) checkKyc(ctx context.Context, userID string) error {
	ident, err := s.identity.GetIdentity(ctx, userID)
	if err != nil {
		slog.Warn("identity lookup failed, failing closed", "user_id", userID, "error", err)
		return fmt.Errorf("%w: KYC status unknown for user %s", pkgerrors.ErrUnauthorizedUser, userID)
	}
	if ident.KycStatus != models.KycVerified {
		return fmt.Errorf("%w: user %s KYC status is %s, must be VERIFIED", pkgerrors.ErrUnauthorizedUser, userID, ident.KycStatus)
	}
	return nil
}

func (s *transactionService) succeed(ctx context.Context, tx *models.Transaction) error {
	if err := s.transactions.UpdateState(ctx, tx.ID, models.StateSuccess); err != nil {
		slog.Error("failed to persist SUCCESS state", "transaction_id", tx.ID, "error", err)
		return fmt.Errorf("%w: failed to persist terminal state: %v", pkgerrors.ErrTransactionProcessing, err)
	}
	tx.State = models.StateSuccess
	return nil
}

// fail persists the FAILED state and returns cause. The update runs on a
// detached context so a caller-side timeout cannot leave the row PENDING.
func (s *transactionService) fail(ctx context.Context, span trace.Span, tx *models.Transaction, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	uctx := context.WithoutCancel(ctx)
	if err := s.transactions.UpdateState(uctx, tx.ID, models.StateFailed); err != nil {
		slog.Error("failed to persist FAILED state", "transaction_id", tx.ID, "error", err)
	}
	tx.State = models.StateFailed

	slog.Error("transaction failed", "transaction_id", tx.ID, "kind", tx.Kind, "error", cause)
	return cause
}

// asProcessing escalates transport-level failures to the processing-failure
// kind; domain outcomes pass through untouched.
func asProcessing(err error) error {
	if pkgerrors.IsDomain(err) {
		return err
	}
	return fmt.Errorf("%w: %v", pkgerrors.ErrTransactionProcessing, err)
}

// notFoundWithNumber annotates a not-found result with the account number
// the caller actually supplied.
func notFoundWithNumber(err error, accountNumber string) error {
	if stderrors.Is(err, pkgerrors.ErrAccountNotFound) {
		return fmt.Errorf("%w: account number %s", pkgerrors.ErrAccountNotFound, accountNumber)
	}
	return err
}
