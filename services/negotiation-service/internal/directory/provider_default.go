//go:build !protogen

package directory

// NewProvider returns the directory collaborator for this build. Without
// generated gRPC stubs the HTTP client is the only transport; grpcAddr is
// accepted so call sites don't change between builds.
func NewProvider(grpcAddr, httpBaseURL string) (Provider, error) {
	if httpBaseURL == "" {
		return nil, nil
	}
	return NewHTTPClient(httpBaseURL), nil
}
