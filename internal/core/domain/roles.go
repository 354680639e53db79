package domain

import "errors"

// Roles recognised by the auth middleware. Token issuance lives in the
// surrounding application; this core only reads resolved claims.
const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
	RoleCustomer   = "customer"
)

var ErrForbidden = errors.New("access forbidden")
