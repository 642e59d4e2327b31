package product

import "context"

// Gateway is the client side of the remote product registry. Implementations
// must be safe for concurrent use. Missing resources are reported with an error
// wrapping failure.ErrNotFound, remote failures with failure.ErrUpstream.
type Gateway interface {
	// Get retrieves a product by its ID
	Get(ctx context.Context, id string) (*BankProduct, error)

	// ListByCustomer retrieves all products owned by a customer
	ListByCustomer(ctx context.Context, customerID string) ([]*BankProduct, error)

	// ListAll retrieves every product in the registry
	ListAll(ctx context.Context) ([]*BankProduct, error)

	// Update replaces the whole product
	Update(ctx context.Context, p *BankProduct) (*BankProduct, error)

	// GetCard retrieves a debit card by its ID
	GetCard(ctx context.Context, id string) (*Card, error)
}
