// address_repository.go implements AddressRepository: plain CRUD over postal addresses.
// Addresses are hard-deleted; users referencing a deleted address have it cleared.
package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/usermanagement/usermanagement/internal/db/models"
)

// AddressRepository handles address database operations
type AddressRepository struct {
	db *sqlx.DB
}

// NewAddressRepository creates a new AddressRepository
func NewAddressRepository(db *sqlx.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// ListAddresses returns all addresses ordered by street
func (r *AddressRepository) ListAddresses(ctx context.Context) ([]*models.Address, error) {
	addresses := []*models.Address{}
	err := r.db.SelectContext(ctx, &addresses,
		`SELECT id, street, postalcode FROM adresses ORDER BY street, postalcode`)
	return addresses, err
}

// GetAddress retrieves an address by ID. Returns nil, nil when not found.
func (r *AddressRepository) GetAddress(ctx context.Context, id string) (*models.Address, error) {
	return getAddress(ctx, r.db, id)
}

// CreateAddress inserts an address, assigning its ID
func (r *AddressRepository) CreateAddress(ctx context.Context, address *models.Address) error {
	return insertAddress(ctx, r.db, address)
}

// UpdateAddress updates an address. Returns false when it does not exist.
func (r *AddressRepository) UpdateAddress(ctx context.Context, address *models.Address) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE adresses SET street = $1, postalcode = $2 WHERE id = $3`,
		address.Street, address.PostalCode, address.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAddress removes an address. Returns false when it does not exist.
func (r *AddressRepository) DeleteAddress(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM adresses WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddressExists reports whether an address with id exists
func (r *AddressRepository) AddressExists(ctx context.Context, id string) (bool, error) {
	missing, err := missingIDs(ctx, r.db, "adresses", []string{id}, false)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

func getAddress(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Address, error) {
	var addr models.Address
	err := sqlx.GetContext(ctx, q, &addr, `SELECT id, street, postalcode FROM adresses WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func insertAddress(ctx context.Context, e sqlx.ExecerContext, address *models.Address) error {
	if address.ID == "" {
		address.ID = uuid.New().String()
	}
	_, err := e.ExecContext(ctx,
		`INSERT INTO adresses (id, street, postalcode) VALUES ($1, $2, $3)`,
		address.ID, address.Street, address.PostalCode)
	return err
}
