//go:build protogen

package directory

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptnegotiate/libs/grpcx"
	directoryv1 "github.com/md-rashed-zaman/apptnegotiate/protos/gen/directory/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type grpcProvider struct {
	client directoryv1.DirectoryServiceClient
}

// NewProvider prefers the gRPC directory when an address is configured and
// falls back to the HTTP client otherwise.
func NewProvider(grpcAddr, httpBaseURL string) (Provider, error) {
	if grpcAddr == "" {
		if httpBaseURL == "" {
			return nil, nil
		}
		return NewHTTPClient(httpBaseURL), nil
	}
	conn, err := grpcx.Dial(context.Background(), grpcAddr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: directoryv1.NewDirectoryServiceClient(conn)}, nil
}

func (p *grpcProvider) FindBusiness(ctx context.Context, id string) (Business, bool, error) {
	resp, err := p.client.GetBusiness(ctx, &directoryv1.GetBusinessRequest{BusinessId: id})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Business{}, false, nil
		}
		return Business{}, false, err
	}
	return Business{
		ID:          resp.GetBusinessId(),
		DisplayName: resp.GetDisplayName(),
		Email:       resp.GetEmail(),
		Phone:       resp.GetPhone(),
	}, true, nil
}

func (p *grpcProvider) FindUser(ctx context.Context, id string) (User, bool, error) {
	resp, err := p.client.GetUser(ctx, &directoryv1.GetUserRequest{UserId: id})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return User{
		ID:    resp.GetUserId(),
		Email: resp.GetEmail(),
	}, true, nil
}
