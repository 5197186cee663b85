package repository

import "github.com/swapsoft/pwdbudget/internal/tenant"

// Resolver maps an office key to its database handle. *tenant.Registry
// implements it.
type Resolver interface {
	Get(office string) (*tenant.Handle, error)
}
