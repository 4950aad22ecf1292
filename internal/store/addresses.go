package store

import (
	"context"
	"database/sql"
	"fmt"

	"bookstore-service/internal/models"
)

// ListAddresses retrieves all saved addresses for a user.
func (s *Store) ListAddresses(ctx context.Context, userID int64) ([]models.Address, error) {
	var addresses []models.Address
	err := s.db.SelectContext(ctx, &addresses,
		"SELECT * FROM addresses WHERE user_id = $1 ORDER BY address_id", userID)
	return addresses, err
}

// GetAddress retrieves an address owned by the given user. Ownership is
// part of the query so a foreign address reads as not found.
func (s *Store) GetAddress(ctx context.Context, addressID, userID int64) (*models.Address, error) {
	var address models.Address
	err := s.db.GetContext(ctx, &address,
		"SELECT * FROM addresses WHERE address_id = $1 AND user_id = $2", addressID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: address %d", ErrNotFound, addressID)
	}
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// CreateAddress inserts a saved address. When the new address is marked
// default, the previous default is cleared in the same transaction so
// the one-default-per-user invariant holds.
func (s *Store) CreateAddress(ctx context.Context, address *models.Address) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if address.IsDefaultShipping {
		if _, err := tx.ExecContext(ctx,
			"UPDATE addresses SET is_default_shipping = FALSE WHERE user_id = $1 AND is_default_shipping = TRUE",
			address.UserID); err != nil {
			return err
		}
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO addresses (user_id, phone_number, address_line1, address_line2, city, postal_code, country, is_default_shipping)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING address_id`,
		address.UserID, address.PhoneNumber, address.AddressLine1, address.AddressLine2,
		address.City, address.PostalCode, address.Country, address.IsDefaultShipping,
	).Scan(&address.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateAddress rewrites a saved address owned by the user.
func (s *Store) UpdateAddress(ctx context.Context, address *models.Address) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE addresses SET phone_number = $1, address_line1 = $2, address_line2 = $3,
		 city = $4, postal_code = $5, country = $6
		 WHERE address_id = $7 AND user_id = $8`,
		address.PhoneNumber, address.AddressLine1, address.AddressLine2,
		address.City, address.PostalCode, address.Country,
		address.ID, address.UserID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: address %d", ErrNotFound, address.ID)
	}
	return nil
}

// DeleteAddress removes a saved address owned by the user.
func (s *Store) DeleteAddress(ctx context.Context, addressID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM addresses WHERE address_id = $1 AND user_id = $2", addressID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: address %d", ErrNotFound, addressID)
	}
	return nil
}

// SetDefaultAddress marks one address as the user's default shipping
// address, clearing any prior default in the same transaction.
func (s *Store) SetDefaultAddress(ctx context.Context, addressID, userID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE addresses SET is_default_shipping = FALSE WHERE user_id = $1 AND is_default_shipping = TRUE",
		userID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE addresses SET is_default_shipping = TRUE WHERE address_id = $1 AND user_id = $2",
		addressID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: address %d", ErrNotFound, addressID)
	}

	return tx.Commit()
}
