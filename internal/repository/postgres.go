package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/smallbiznis-users/internal/domain"
)

// Compile-time interface assertions.
var (
	_ AccountRepository = (*PostgresAccountRepo)(nil)
	_ MessageRepository = (*PostgresMessageRepo)(nil)
)

const accountColumns = `id, first_name, last_name, username, email, password_hash, profile_picture_url, coins_amount, plan, role, created_at, updated_at`

// PostgresAccountRepo implements AccountRepository on pgx. The unique indexes
// on username and email are the authoritative uniqueness guard; violations are
// mapped to the domain duplicate errors here.
type PostgresAccountRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAccountRepo(pool *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: pool}
}

func (r *PostgresAccountRepo) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account by email: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) List(ctx context.Context, role domain.Role) ([]domain.AccountSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT username, profile_picture_url FROM accounts WHERE role = $1 ORDER BY username`, role)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var summaries []domain.AccountSummary
	for rows.Next() {
		var s domain.AccountSummary
		if err := rows.Scan(&s.Username, &s.ProfilePictureURL); err != nil {
			return nil, fmt.Errorf("scan account summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return summaries, nil
}

const insertAccountSQL = `INSERT INTO accounts (first_name, last_name, username, email, password_hash, profile_picture_url, coins_amount, plan, role)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	row := r.db.QueryRow(ctx, insertAccountSQL,
		account.FirstName,
		account.LastName,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.ProfilePictureURL,
		account.CoinsAmount,
		account.Plan,
		account.Role,
	)
	inserted, err := scanAccount(row)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return domain.Account{}, dup
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return inserted, nil
}

const updateAccountSQL = `UPDATE accounts
SET first_name = $2, last_name = $3, email = $4, password_hash = $5, profile_picture_url = $6, coins_amount = $7, plan = $8, role = $9, updated_at = now()
WHERE id = $1
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) Update(ctx context.Context, account domain.Account) (domain.Account, error) {
	row := r.db.QueryRow(ctx, updateAccountSQL,
		account.ID,
		account.FirstName,
		account.LastName,
		account.Email,
		account.PasswordHash,
		account.ProfilePictureURL,
		account.CoinsAmount,
		account.Plan,
		account.Role,
	)
	updated, err := scanAccount(row)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return domain.Account{}, dup
		}
		return domain.Account{}, fmt.Errorf("update account: %w", err)
	}
	return updated, nil
}

func (r *PostgresAccountRepo) Delete(ctx context.Context, username string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete account: %w", pgx.ErrNoRows)
	}
	return nil
}

// PostgresMessageRepo implements MessageRepository.
type PostgresMessageRepo struct {
	db *pgxpool.Pool
}

func NewPostgresMessageRepo(pool *pgxpool.Pool) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: pool}
}

func (r *PostgresMessageRepo) DeleteAllForParticipant(ctx context.Context, username string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM messages WHERE sender = $1 OR receiver = $1`, username)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.FirstName,
		&a.LastName,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.ProfilePictureURL,
		&a.CoinsAmount,
		&a.Plan,
		&a.Role,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// duplicateError translates unique-index violations into domain errors by
// constraint name.
func duplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "accounts_username_key":
		return domain.ErrDuplicateUsername
	case "accounts_email_key":
		return domain.ErrDuplicateEmail
	}
	return fmt.Errorf("unique violation on %s: %w", pgErr.ConstraintName, err)
}
