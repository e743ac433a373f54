package directory

import "context"

type Business struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider looks up negotiation parties in the platform directories. The
// second return value is false when the record does not exist; callers treat
// that as a soft miss, not an error.
type Provider interface {
	FindBusiness(ctx context.Context, id string) (Business, bool, error)
	FindUser(ctx context.Context, id string) (User, bool, error)
}
