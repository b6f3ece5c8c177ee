package database

import (
	"database/sql"
	"fmt"
	"time"
)

type credentialRepository struct {
	db *DB
}

func NewCredentialRepository(db *DB) CredentialRepository {
	return &credentialRepository{db: db}
}

const credentialColumns = `id, COALESCE(client_id, ''), COALESCE(client_secret, ''),
	       COALESCE(user_id, ''), COALESCE(user_email, ''), COALESCE(access_token, ''),
	       COALESCE(refresh_token, ''), COALESCE(token_uri, ''), COALESCE(scopes, ''),
	       COALESCE(token_type, ''), expiry, created_at, updated_at`

func (r *credentialRepository) Load() (*Credential, error) {
	var cred Credential
	err := r.db.QueryRow(`
		SELECT `+credentialColumns+`
		FROM oauth_credentials
		ORDER BY id
		LIMIT 1
	`).Scan(
		&cred.ID, &cred.ClientID, &cred.ClientSecret, &cred.UserID, &cred.UserEmail,
		&cred.AccessToken, &cred.RefreshToken, &cred.TokenURI, &cred.Scopes,
		&cred.TokenType, &cred.Expiry, &cred.CreatedAt, &cred.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	return &cred, nil
}

func (r *credentialRepository) List() ([]Credential, error) {
	rows, err := r.db.Query(`
		SELECT ` + credentialColumns + `
		FROM oauth_credentials
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var cred Credential
		err := rows.Scan(
			&cred.ID, &cred.ClientID, &cred.ClientSecret, &cred.UserID, &cred.UserEmail,
			&cred.AccessToken, &cred.RefreshToken, &cred.TokenURI, &cred.Scopes,
			&cred.TokenType, &cred.Expiry, &cred.CreatedAt, &cred.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credential rows: %w", err)
	}

	return creds, nil
}

func (r *credentialRepository) Save(material TokenMaterial, existing *Credential, identity Identity) (*Credential, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var id int64

	if existing != nil {
		_, err = tx.Exec(`
			UPDATE oauth_credentials
			SET access_token = ?, refresh_token = ?, token_uri = ?, scopes = ?,
			    token_type = ?, expiry = ?, updated_at = ?
			WHERE id = ?
		`, material.AccessToken, material.RefreshToken, material.TokenURI,
			material.Scopes, material.TokenType, material.Expiry, now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update credential: %w", err)
		}
		id = existing.ID
	} else {
		res, err := tx.Exec(`
			INSERT INTO oauth_credentials (access_token, refresh_token, token_uri,
			                               scopes, token_type, expiry, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, material.AccessToken, material.RefreshToken, material.TokenURI,
			material.Scopes, material.TokenType, material.Expiry, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert credential: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get inserted credential id: %w", err)
		}
	}

	// Identity fields are only overwritten when explicitly supplied
	identityUpdates := map[string]*string{
		"client_id":     identity.ClientID,
		"client_secret": identity.ClientSecret,
		"user_id":       identity.UserID,
		"user_email":    identity.UserEmail,
	}
	for column, value := range identityUpdates {
		if value == nil {
			continue
		}
		_, err = tx.Exec(`UPDATE oauth_credentials SET `+column+` = ? WHERE id = ?`, *value, id)
		if err != nil {
			return nil, fmt.Errorf("failed to update credential %s: %w", column, err)
		}
	}

	var cred Credential
	err = tx.QueryRow(`
		SELECT `+credentialColumns+`
		FROM oauth_credentials
		WHERE id = ?
	`, id).Scan(
		&cred.ID, &cred.ClientID, &cred.ClientSecret, &cred.UserID, &cred.UserEmail,
		&cred.AccessToken, &cred.RefreshToken, &cred.TokenURI, &cred.Scopes,
		&cred.TokenType, &cred.Expiry, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read back credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit credential save: %w", err)
	}

	return &cred, nil
}

func (r *credentialRepository) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM oauth_credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
