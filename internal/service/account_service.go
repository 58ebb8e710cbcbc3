package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-users/internal/config"
	"github.com/smallbiznis/smallbiznis-users/internal/domain"
	"github.com/smallbiznis/smallbiznis-users/internal/jwt"
	"github.com/smallbiznis/smallbiznis-users/internal/password"
	"github.com/smallbiznis/smallbiznis-users/internal/repository"
	"github.com/smallbiznis/smallbiznis-users/internal/validate"
)

const oneTimePasswordLength = 8

// EventPublisher delivers best-effort notification events. Failures are
// logged by the engine, never retried, and never abort the triggering
// operation.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Mailer delivers the password-reset email.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, firstName, lastName, username, oneTimePassword string) error
}

// AccountService is the reconciliation engine: every mutation runs the
// merge -> validate -> uniqueness-check -> persist sequence and re-issues a
// credential reflecting the new state.
type AccountService struct {
	accounts repository.AccountRepository
	messages repository.MessageRepository
	hasher   *password.Hasher
	tokens   *jwt.Generator
	events   EventPublisher
	mailer   Mailer
	cfg      config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewAccountService wires the engine with its collaborators.
func NewAccountService(
	accounts repository.AccountRepository,
	messages repository.MessageRepository,
	hasher *password.Hasher,
	tokens *jwt.Generator,
	events EventPublisher,
	mailer Mailer,
	cfg config.Config,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		messages: messages,
		hasher:   hasher,
		tokens:   tokens,
		events:   events,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("users.service"),
	}
}

// CreateInput is the untrusted field-set for registration. Role is never
// accepted from callers.
type CreateInput struct {
	FirstName string
	LastName  string
	Username  string
	Password  string
	Email     string
	Plan      domain.Plan
}

// Patch is the sparse field-set merged onto a stored account. Nil pointers
// mean "leave unchanged". Password change activates only when NewPassword is
// non-empty.
type Patch struct {
	FirstName         *string
	LastName          *string
	Username          *string
	Email             *string
	ProfilePictureURL *string
	CoinsAmount       *int64
	Plan              *domain.Plan
	Role              *domain.Role
	CurrentPassword   string
	NewPassword       string
}

// AuthResult pairs a fresh credential with the public view of the account it
// was issued for.
type AuthResult struct {
	Token   string
	Account domain.PublicAccount
}

// Create registers a new account. The candidate is merged onto defaults, the
// role is forced to USER, and nothing is persisted unless validation and
// hashing both succeed.
func (s *AccountService) Create(ctx context.Context, in CreateInput) (AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Create")
	defer span.End()

	candidate := domain.Account{
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Username:          normalizeIdentifier(in.Username),
		Email:             normalizeIdentifier(in.Email),
		ProfilePictureURL: s.cfg.DefaultPictureURL,
		CoinsAmount:       0,
		Plan:              in.Plan,
		Role:              domain.RoleUser,
	}
	if candidate.Plan == "" {
		candidate.Plan = domain.PlanBasic
	}

	if err := validate.Account(candidate, in.Password, false); err != nil {
		return AuthResult{}, err
	}

	if _, err := s.accounts.GetByUsername(ctx, candidate.Username); err == nil {
		return AuthResult{}, domain.ErrDuplicateUsername
	} else if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		return AuthResult{}, fmt.Errorf("check existing account: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, err
	}
	candidate.PasswordHash = hash

	created, err := s.accounts.Create(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, err
	}

	token, err := s.tokens.Issue(created)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.audit("account.create.success", zap.String("username", created.Username))
	return AuthResult{Token: token, Account: created.Public()}, nil
}

// Authenticate verifies a username/secret pair. Unknown usernames and wrong
// passwords yield the same error so accounts cannot be enumerated.
func (s *AccountService) Authenticate(ctx context.Context, username, secret string) (AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Authenticate")
	defer span.End()

	account, err := s.accounts.GetByUsername(ctx, normalizeIdentifier(username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthResult{}, domain.ErrInvalidCredentials
		}
		span.RecordError(err)
		return AuthResult{}, fmt.Errorf("load account: %w", err)
	}

	if !s.hasher.Verify(secret, account.PasswordHash) {
		return AuthResult{}, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.audit("account.login.success", zap.String("username", account.Username))
	return AuthResult{Token: token, Account: account.Public()}, nil
}

// SelfUpdate reconciles a patch against the actor's own account. Role,
// username, and plan cannot be changed through this path; admin accounts
// cannot be self-updated at all.
func (s *AccountService) SelfUpdate(ctx context.Context, actorUsername string, patch Patch) (AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AccountService.SelfUpdate")
	defer span.End()

	if patch.Role != nil || patch.Username != nil || patch.Plan != nil {
		return AuthResult{}, domain.ErrForbidden
	}
	// Coins are an admin-managed balance; the key is outside the self-service
	// allow-list and is dropped.
	patch.CoinsAmount = nil

	stored, err := s.accounts.GetByUsername(ctx, actorUsername)
	if err != nil {
		span.RecordError(err)
		// The actor was just authenticated, so absence here is a consistency
		// failure, not a user-facing not-found.
		return AuthResult{}, fmt.Errorf("load actor account %q: %w", actorUsername, err)
	}

	return s.reconcile(ctx, span, stored, patch)
}

// AdminUpdate reconciles a patch against another account. Only admins may
// call it, admin targets are immutable, and picture/password fields are
// stripped before processing. Plan and role changes are permitted.
func (s *AccountService) AdminUpdate(ctx context.Context, actingRole domain.Role, targetUsername string, patch Patch) (AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AccountService.AdminUpdate")
	defer span.End()

	if actingRole != domain.RoleAdmin {
		return AuthResult{}, domain.ErrForbidden
	}

	// Administrators cannot set another user's picture or password, and
	// usernames are immutable after creation.
	patch.ProfilePictureURL = nil
	patch.Username = nil
	patch.CurrentPassword = ""
	patch.NewPassword = ""

	stored, err := s.accounts.GetByUsername(ctx, targetUsername)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthResult{}, domain.ErrNotFound
		}
		span.RecordError(err)
		return AuthResult{}, fmt.Errorf("load target account: %w", err)
	}

	return s.reconcile(ctx, span, stored, patch)
}

// reconcile merges the patch, runs the password branch, validates the merged
// record, enforces admin immutability and email uniqueness, and performs the
// single replace write. Nothing is persisted if any step fails.
func (s *AccountService) reconcile(ctx context.Context, span trace.Span, stored domain.Account, patch Patch) (AuthResult, error) {
	merged := stored
	emailChanged := false

	if patch.FirstName != nil && *patch.FirstName != merged.FirstName {
		merged.FirstName = *patch.FirstName
	}
	if patch.LastName != nil && *patch.LastName != merged.LastName {
		merged.LastName = *patch.LastName
	}
	if patch.Email != nil {
		email := normalizeIdentifier(*patch.Email)
		if email != merged.Email {
			merged.Email = email
			emailChanged = true
		}
	}
	if patch.ProfilePictureURL != nil && *patch.ProfilePictureURL != merged.ProfilePictureURL {
		merged.ProfilePictureURL = *patch.ProfilePictureURL
	}
	if patch.CoinsAmount != nil && *patch.CoinsAmount != merged.CoinsAmount {
		merged.CoinsAmount = *patch.CoinsAmount
	}
	if patch.Plan != nil && *patch.Plan != merged.Plan {
		merged.Plan = *patch.Plan
	}
	if patch.Role != nil && *patch.Role != merged.Role {
		merged.Role = *patch.Role
	}

	if patch.NewPassword != "" {
		if patch.CurrentPassword == "" || !s.hasher.Verify(patch.CurrentPassword, stored.PasswordHash) {
			return AuthResult{}, domain.ErrInvalidCurrentPassword
		}
		hash, err := s.hasher.Hash(patch.NewPassword)
		if err != nil {
			span.RecordError(err)
			return AuthResult{}, err
		}
		merged.PasswordHash = hash
	}

	if err := validate.Account(merged, "", true); err != nil {
		return AuthResult{}, err
	}

	// Admin accounts are immutable through the update workflow.
	if stored.Role == domain.RoleAdmin {
		return AuthResult{}, domain.ErrForbidden
	}

	if emailChanged {
		if _, err := s.accounts.GetByEmail(ctx, merged.Email); err == nil {
			return AuthResult{}, domain.ErrDuplicateEmail
		} else if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)
			return AuthResult{}, fmt.Errorf("check email uniqueness: %w", err)
		}
	}

	updated, err := s.accounts.Update(ctx, merged)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, err
	}

	token, err := s.tokens.Issue(updated)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.audit("account.update.success", zap.String("username", updated.Username), zap.Bool("email_changed", emailChanged))
	return AuthResult{Token: token, Account: updated.Public()}, nil
}

// Delete removes the actor's account, then cascades to dependent messages and
// publishes a deletion event. The cascade is advisory cleanup: its failure is
// logged and does not resurrect the already-removed account.
func (s *AccountService) Delete(ctx context.Context, actorUsername string) error {
	ctx, span := s.startSpan(ctx, "AccountService.Delete")
	defer span.End()

	if err := s.accounts.Delete(ctx, actorUsername); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		span.RecordError(err)
		return err
	}

	count, err := s.messages.DeleteAllForParticipant(ctx, actorUsername)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("message cascade failed after account deletion",
			zap.String("username", actorUsername),
			zap.Error(err),
		)
	}

	payload := map[string]string{"username": actorUsername}
	if err := s.events.Publish(ctx, "notificationUserDeletion", payload); err != nil {
		span.RecordError(err)
		s.logger.Warn("deletion event publish failed",
			zap.String("username", actorUsername),
			zap.Error(err),
		)
	}

	s.audit("account.delete.success",
		zap.String("username", actorUsername),
		zap.Int64("messages_removed", count),
	)
	return nil
}

// Get returns the public view of one account.
func (s *AccountService) Get(ctx context.Context, username string) (domain.PublicAccount, error) {
	ctx, span := s.startSpan(ctx, "AccountService.Get")
	defer span.End()

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PublicAccount{}, domain.ErrNotFound
		}
		span.RecordError(err)
		return domain.PublicAccount{}, fmt.Errorf("load account: %w", err)
	}
	return account.Public(), nil
}

// List returns minimal views of all USER-role accounts except the caller.
func (s *AccountService) List(ctx context.Context, exceptUsername string) ([]domain.AccountSummary, error) {
	ctx, span := s.startSpan(ctx, "AccountService.List")
	defer span.End()

	summaries, err := s.accounts.List(ctx, domain.RoleUser)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	filtered := make([]domain.AccountSummary, 0, len(summaries))
	for _, summary := range summaries {
		if summary.Username == exceptUsername {
			continue
		}
		filtered = append(filtered, summary)
	}
	return filtered, nil
}

// ResetPassword generates a one-time password, persists its hash through the
// same replace mechanics as a normal password change, and delegates delivery
// to the mail collaborator.
func (s *AccountService) ResetPassword(ctx context.Context, username string) error {
	ctx, span := s.startSpan(ctx, "AccountService.ResetPassword")
	defer span.End()

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("load account: %w", err)
	}

	oneTime, err := secureRandomString(oneTimePasswordLength)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("generate one-time password: %w", err)
	}

	hash, err := s.hasher.Hash(oneTime)
	if err != nil {
		span.RecordError(err)
		return err
	}
	account.PasswordHash = hash

	if _, err := s.accounts.Update(ctx, account); err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, account.Email, account.FirstName, account.LastName, account.Username, oneTime); err != nil {
		span.RecordError(err)
		return fmt.Errorf("send reset email: %w", err)
	}

	s.audit("account.password_reset.success", zap.String("username", account.Username))
	return nil
}

func (s *AccountService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func (s *AccountService) audit(event string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Info(event, fields...)
	}
}

func normalizeIdentifier(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func secureRandomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	if len(encoded) > size {
		encoded = encoded[:size]
	}
	return encoded, nil
}
