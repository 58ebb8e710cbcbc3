package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/smallbiznis/smallbiznis-users/internal/config"
	"github.com/smallbiznis/smallbiznis-users/internal/domain"
	"github.com/smallbiznis/smallbiznis-users/internal/jwt"
	"github.com/smallbiznis/smallbiznis-users/internal/password"
	"github.com/smallbiznis/smallbiznis-users/internal/service"
)

const defaultPicture = "https://cdn.example.com/default-user.jpg"

func newTestService(t *testing.T) (*service.AccountService, *memoryAccountRepo, *memoryMessageRepo, *capturingPublisher, *capturingMailer, *jwt.Generator) {
	t.Helper()

	accounts := &memoryAccountRepo{records: map[string]domain.Account{}}
	messages := &memoryMessageRepo{}
	publisher := &capturingPublisher{}
	mailer := &capturingMailer{}
	hasher := password.NewHasher(bcrypt.MinCost)
	generator := jwt.NewGenerator([]byte("test-secret"), "users-test", time.Minute)
	cfg := config.Config{DefaultPictureURL: defaultPicture}

	svc := service.NewAccountService(accounts, messages, hasher, generator, publisher, mailer, cfg, zap.NewNop())
	return svc, accounts, messages, publisher, mailer, generator
}

func mustCreate(t *testing.T, svc *service.AccountService, username, secret string) service.AuthResult {
	t.Helper()
	result, err := svc.Create(context.Background(), service.CreateInput{
		FirstName: "Test",
		LastName:  "User",
		Username:  username,
		Password:  secret,
		Email:     username + "@example.com",
	})
	require.NoError(t, err)
	return result
}

func TestCreateAppliesDefaultsAndIssuesToken(t *testing.T) {
	svc, accounts, _, _, _, generator := newTestService(t)

	result, err := svc.Create(context.Background(), service.CreateInput{
		FirstName: "Maria",
		LastName:  "Doe",
		Username:  "  MariaDoe ",
		Password:  "secret123",
		Email:     "Maria@Example.com",
	})
	require.NoError(t, err)

	require.Equal(t, "mariadoe", result.Account.Username)
	require.Equal(t, "maria@example.com", result.Account.Email)
	require.Equal(t, domain.PlanBasic, result.Account.Plan)
	require.Equal(t, domain.RoleUser, result.Account.Role)
	require.Equal(t, defaultPicture, result.Account.ProfilePictureURL)
	require.Zero(t, result.Account.CoinsAmount)

	claims, err := generator.Decode(result.Token)
	require.NoError(t, err)
	require.Equal(t, "mariadoe", claims.Username)
	require.Equal(t, string(domain.RoleUser), claims.Role)

	stored, err := accounts.GetByUsername(context.Background(), "mariadoe")
	require.NoError(t, err)
	require.NotEqual(t, "secret123", stored.PasswordHash)
}

func TestCreateRejectsDuplicateUsername(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(t)

	mustCreate(t, svc, "johndoe", "john123")

	_, err := svc.Create(context.Background(), service.CreateInput{
		FirstName: "Other",
		LastName:  "John",
		Username:  "JohnDoe",
		Password:  "different",
		Email:     "other@example.com",
	})
	require.ErrorIs(t, err, domain.ErrDuplicateUsername)
}

func TestCreateValidationFailsFast(t *testing.T) {
	svc, accounts, _, _, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), service.CreateInput{
		FirstName: "Maria",
		LastName:  "Doe",
		Username:  "mariadoe",
		Email:     "maria@example.com",
	})
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "password", validationErr.Field)
	require.Empty(t, accounts.records)
}

func TestAuthenticateDoesNotRevealWhichFactorFailed(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(t)
	mustCreate(t, svc, "johndoe", "john123")

	_, wrongPassword := svc.Authenticate(context.Background(), "johndoe", "nope")
	_, unknownUser := svc.Authenticate(context.Background(), "ghost", "nope")

	require.ErrorIs(t, wrongPassword, domain.ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, domain.ErrInvalidCredentials)
	require.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestSelfUpdateRejectsPrivilegedFields(t *testing.T) {
	svc, accounts, _, _, _, _ := newTestService(t)
	mustCreate(t, svc, "johndoe", "john123")
	before := accounts.records["johndoe"]

	role := domain.RoleAdmin
	username := "newname"
	plan := domain.PlanPremium

	for name, patch := range map[string]service.Patch{
		"role":     {Role: &role},
		"username": {Username: &username},
		"plan":     {Plan: &plan},
	} {
		_, err := svc.SelfUpdate(context.Background(), "johndoe", patch)
		require.ErrorIs(t, err, domain.ErrForbidden, name)
	}

	require.Equal(t, before, accounts.records["johndoe"])
}

func TestSelfUpdateIgnoresCoinsAmount(t *testing.T) {
	svc, accounts, _, _, _, _ := newTestService(t)
	mustCreate(t, svc, "johndoe", "john123")

	coins := int64(5000)
	first := "Johnny"
	result, err := svc.SelfUpdate(context.Background(), "johndoe", service.Patch{
		FirstName:   &first,
		CoinsAmount: &coins,
	})
	require.NoError(t, err)
	require.Equal(t, "Johnny", result.Account.FirstName)
	require.Zero(t, result.Account.CoinsAmount)
	require.Zero(t, accounts.records["johndoe"].CoinsAmount)
}

func TestSelfUpdatePasswordChange(t *testing.T) {
	svc, accounts, _, _, _, _ := newTestService(t)
	mustCreate(t, svc, "johndoe", "john123")
	oldHash := accounts.records["johndoe"].PasswordHash

	_, err := svc.SelfUpdate(context.Background(), "johndoe", service.Patch{
		CurrentPassword: "wrong",
		NewPassword:     "brandnew",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCurrentPassword)
	require.Equal(t, oldHash, accounts.records["johndoe"].PasswordHash)

	_, err = svc.SelfUpdate(context.Background(), "johndoe", service.Patch{
		NewPassword: "brandnew",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCurrentPassword)

	_, err = svc.SelfUpdate(context.Background(), "johndoe", service.Patch{
		CurrentPassword: "john123",
		NewPassword:     "brandnew",
	})
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "johndoe", "john123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Authenticate(context.Background(), "johndoe", "brandnew")
	require.NoError(t, err)
}

func TestSelfUpdateRejectsDuplicateEmail(t *testing.T) {
	svc, accounts, _, _, _, _ := newTestService(t)
	mustCreate(t, svc, "mariadoe", "maria123")
	mustCreate(t, svc, "johndoe", "john123")

	email := "MariaDoe@example.com"
	_, err := svc.SelfUpdate(context.Background(), "johndoe", service.Patch{Email: &email})
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)
	require.Equal(t, "johndoe@example.com", accounts.records["johndoe"].Email)

	// Re-submitting the caller's own email is not a conflict.
	own := "johndoe@example.com"
	_, err = svc.SelfUpdate(context.Background(), "johndoe", service.Patch{Email: &own})
	require.NoError(t, err)
}

func TestAdminUpdate(t *testing.T) {
	svc, accounts, _, _, _, generator := newTestService(t)
	mustCreate(t, svc, "johndoe", "john123")

	plan := domain.PlanPro
	coins := int64(250)
	_, err := svc.AdminUpdate(context.Background(), domain.RoleUser, "johndoe", service.Patch{Plan: &plan})
	require.ErrorIs(t, err, domain.ErrForbidden)

	result, err := svc.AdminUpdate(context.Background(), domain.RoleAdmin, "johndoe", service.Patch{
		Plan:        &plan,
		CoinsAmount: &coins,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PlanPro, result.Account.Plan)
	require.Equal(t, int64(250), result.Account.CoinsAmount)

	// The returned token reflects the target, not the acting admin.
	claims, err := generator.Decode(result.Token)
	require.NoError(t, err)
	require.Equal(t, "johndoe", claims.Username)

	_, err = svc.AdminUpdate(context.Background(), domain.RoleAdmin, "ghost", service.Patch{Plan: &plan})
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Picture and password fields are stripped before the merge.
	picture := "https://evil.example.com/x.png"
	oldHash := accounts.records["johndoe"].PasswordHash
	result, err = svc.AdminUpdate(context.Background(), domain.RoleAdmin, "johndoe", service.Patch{
		ProfilePictureURL: &picture,
		CurrentPassword:   "john123",
		NewPassword:       "hijacked",
	})
	require.NoError(t, err)
	require.Equal(t, defaultPicture, result.Account.ProfilePictureURL)
	require.Equal(t, oldHash, accounts.records["johndoe"].PasswordHash)
}

func TestAdminAccountsAreImmutable(t *testing.T) {
	svc, accounts, _, _, _, _ := newTestService(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)
	accounts.records["admin"] = domain.Account{
		ID: 99, FirstName: "Root", LastName: "Admin", Username: "admin",
		Email: "admin@example.com", PasswordHash: string(hash),
		ProfilePictureURL: defaultPicture, Plan: domain.PlanPro, Role: domain.RoleAdmin,
	}

	first := "Changed"
	_, err = svc.AdminUpdate(context.Background(), domain.RoleAdmin, "admin", service.Patch{FirstName: &first})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.SelfUpdate(context.Background(), "admin", service.Patch{FirstName: &first})
	require.ErrorIs(t, err, domain.ErrForbidden)

	require.Equal(t, "Root", accounts.records["admin"].FirstName)
}

func TestDeleteCascadesAndPublishes(t *testing.T) {
	svc, accounts, messages, publisher, _, _ := newTestService(t)
	mustCreate(t, svc, "johndoe", "john123")
	messages.count = 7

	require.NoError(t, svc.Delete(context.Background(), "johndoe"))

	require.Empty(t, accounts.records)
	require.Equal(t, []string{"johndoe"}, messages.deletedFor)
	require.Len(t, publisher.events, 1)
	require.Equal(t, "notificationUserDeletion", publisher.events[0].eventType)
	require.Equal(t, map[string]string{"username": "johndoe"}, publisher.events[0].payload)

	_, err := svc.Authenticate(context.Background(), "johndoe", "john123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	require.ErrorIs(t, svc.Delete(context.Background(), "ghost"), domain.ErrNotFound)
}

func TestDeleteSurvivesCascadeFailure(t *testing.T) {
	svc, accounts, messages, publisher, _, _ := newTestService(t)
	mustCreate(t, svc, "johndoe", "john123")
	messages.err = fmt.Errorf("messages store down")
	publisher.err = fmt.Errorf("broker down")

	require.NoError(t, svc.Delete(context.Background(), "johndoe"))
	require.Empty(t, accounts.records)
}

func TestListExcludesCallerAndAdmins(t *testing.T) {
	svc, accounts, _, _, _, _ := newTestService(t)
	mustCreate(t, svc, "mariadoe", "maria123")
	mustCreate(t, svc, "johndoe", "john123")
	accounts.records["admin"] = domain.Account{
		ID: 99, Username: "admin", Role: domain.RoleAdmin,
	}

	summaries, err := svc.List(context.Background(), "johndoe")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "mariadoe", summaries[0].Username)
}

func TestResetPasswordIssuesWorkingOneTimePassword(t *testing.T) {
	svc, _, _, _, mailer, _ := newTestService(t)
	mustCreate(t, svc, "johndoe", "john123")

	require.NoError(t, svc.ResetPassword(context.Background(), "johndoe"))
	require.Equal(t, "johndoe@example.com", mailer.to)
	require.NotEmpty(t, mailer.oneTime)

	_, err := svc.Authenticate(context.Background(), "johndoe", "john123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Authenticate(context.Background(), "johndoe", mailer.oneTime)
	require.NoError(t, err)

	require.ErrorIs(t, svc.ResetPassword(context.Background(), "ghost"), domain.ErrNotFound)
}

type memoryAccountRepo struct {
	records map[string]domain.Account
	nextID  int64
}

func (m *memoryAccountRepo) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	account, ok := m.records[username]
	if !ok {
		return domain.Account{}, fmt.Errorf("account %q: %w", username, pgx.ErrNoRows)
	}
	return account, nil
}

func (m *memoryAccountRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	for _, account := range m.records {
		if account.Email == email {
			return account, nil
		}
	}
	return domain.Account{}, fmt.Errorf("account email %q: %w", email, pgx.ErrNoRows)
}

func (m *memoryAccountRepo) List(ctx context.Context, role domain.Role) ([]domain.AccountSummary, error) {
	var summaries []domain.AccountSummary
	for _, account := range m.records {
		if account.Role != role {
			continue
		}
		summaries = append(summaries, domain.AccountSummary{
			Username:          account.Username,
			ProfilePictureURL: account.ProfilePictureURL,
		})
	}
	return summaries, nil
}

func (m *memoryAccountRepo) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	m.nextID++
	account.ID = m.nextID
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	m.records[account.Username] = account
	return account, nil
}

func (m *memoryAccountRepo) Update(ctx context.Context, account domain.Account) (domain.Account, error) {
	if _, ok := m.records[account.Username]; !ok {
		return domain.Account{}, fmt.Errorf("account %q: %w", account.Username, pgx.ErrNoRows)
	}
	account.UpdatedAt = time.Now()
	m.records[account.Username] = account
	return account, nil
}

func (m *memoryAccountRepo) Delete(ctx context.Context, username string) error {
	if _, ok := m.records[username]; !ok {
		return fmt.Errorf("account %q: %w", username, pgx.ErrNoRows)
	}
	delete(m.records, username)
	return nil
}

type memoryMessageRepo struct {
	count      int64
	err        error
	deletedFor []string
}

func (m *memoryMessageRepo) DeleteAllForParticipant(ctx context.Context, username string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.deletedFor = append(m.deletedFor, username)
	return m.count, nil
}

type publishedEvent struct {
	eventType string
	payload   any
}

type capturingPublisher struct {
	events []publishedEvent
	err    error
}

func (p *capturingPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{eventType: eventType, payload: payload})
	return nil
}

type capturingMailer struct {
	to      string
	oneTime string
}

func (m *capturingMailer) SendPasswordReset(ctx context.Context, to, firstName, lastName, username, oneTimePassword string) error {
	m.to = to
	m.oneTime = oneTimePassword
	return nil
}
