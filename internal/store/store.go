package store

import (
	"errors"
)

// Sentinel errors for common error conditions
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrPrincipalNotFound         = errors.New("principal not found")
	ErrMembershipNotFound        = errors.New("membership not found")
	ErrMembershipAlreadyExists   = errors.New("membership already exists")
	ErrItemNotFound              = errors.New("item not found")
	ErrInviteNotFound            = errors.New("invite not found")
	ErrSaleNotFound              = errors.New("sale not found")
	ErrImageNotFound             = errors.New("image not found")
)
