package identity

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

type proofKey struct{}

// WithProof attaches a signed bearer token to the invocation context.
// Hosts that express party control as JWTs call this before invoking the
// engine; multiple proofs may be stacked for multi-party operations.
func WithProof(ctx context.Context, token string) context.Context {
	proofs, _ := ctx.Value(proofKey{}).([]string)
	return context.WithValue(ctx, proofKey{}, append(proofs[:len(proofs):len(proofs)], token))
}

// PartyClaims binds a token to the party it authorizes. Subject carries
// the party reference.
type PartyClaims struct {
	jwt.RegisteredClaims
}

// JWTVerifier validates bearer tokens carried in the invocation context
// and matches their subject against the party under verification.
type JWTVerifier struct {
	keyFunc jwt.Keyfunc
	issuer  string
}

// NewJWTVerifier creates a verifier for tokens signed with the HMAC
// secret and issued by issuer. An empty issuer disables the issuer check.
func NewJWTVerifier(secret []byte, issuer string) *JWTVerifier {
	return &JWTVerifier{
		keyFunc: func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		},
		issuer: issuer,
	}
}

func (v *JWTVerifier) RequireAuthorized(ctx context.Context, party contracts.Party) error {
	if err := ValidateParty(party); err != nil {
		return err
	}
	proofs, _ := ctx.Value(proofKey{}).([]string)
	for _, raw := range proofs {
		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
		if v.issuer != "" {
			opts = append(opts, jwt.WithIssuer(v.issuer))
		}
		token, err := jwt.ParseWithClaims(raw, &PartyClaims{}, v.keyFunc, opts...)
		if err != nil || !token.Valid {
			continue
		}
		claims, ok := token.Claims.(*PartyClaims)
		if ok && contracts.Party(claims.Subject) == party {
			return nil
		}
	}
	return contracts.ErrUnauthorized
}
