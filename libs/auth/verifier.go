package auth

// Verifier resolves a bearer token into claims. Implementations cover the two
// deployment shapes: a shared HS256 secret (local/dev, single tenant) and RS256
// with keys fetched from a JWKS endpoint (production, auth service rotates keys).
type Verifier interface {
	Verify(token string) (*Claims, error)
}

type HS256Verifier struct {
	secret string
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: secret}
}

func (v *HS256Verifier) Verify(token string) (*Claims, error) {
	return ParseAndVerifyHS256(token, v.secret)
}

type JWKSVerifier struct {
	client *JWKSClient
}

func NewJWKSVerifier(client *JWKSClient) *JWKSVerifier {
	return &JWKSVerifier{client: client}
}

func (v *JWKSVerifier) Verify(token string) (*Claims, error) {
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if header.Alg != "RS256" || header.Kid == "" {
		return nil, ErrInvalidToken
	}
	key, err := v.client.Get(header.Kid)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return VerifyRS256(token, key)
}
