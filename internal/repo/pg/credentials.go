package pg

import (
	"context"

	"trade_core/internal/models"
	"trade_core/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type CredentialsRepo struct {
	db db.TxManager
}

func NewCredentialsRepo(txm *db.PgTxManager) *CredentialsRepo {
	return &CredentialsRepo{db: txm}
}

// GetCredentials returns the exchange keys for an account. A missing
// row is an error; execution treats it as non-retryable.
func (r *CredentialsRepo) GetCredentials(ctx context.Context, accountID string) (creds models.Credentials, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.Credentials")
		}
	}()

	row := r.db.Conn().QueryRow(ctx, `
		SELECT account_id, api_key, secret_key, passphrase, is_testnet
		FROM account_credentials
		WHERE account_id = $1`,
		accountID,
	)
	err = row.Scan(&creds.AccountID, &creds.APIKey, &creds.SecretKey, &creds.Passphrase, &creds.IsTestnet)
	if err == pgx.ErrNoRows {
		return models.Credentials{}, errors.Errorf("no credentials for account %s", accountID)
	}
	if err != nil {
		return models.Credentials{}, err
	}
	return creds, nil
}
