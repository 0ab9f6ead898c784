package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTVerifier validates HMAC-signed access tokens issued by the account service.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	source   string
}

func NewJWTVerifier(secret, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		source:   "jwt",
	}
}

type accessClaims struct {
	UserID       string `json:"user_id,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Role         string `json:"role,omitempty"`
	ChurchID     string `json:"church_id,omitempty"`
	MembershipID string `json:"membership_id,omitempty"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (*Identity, error) {
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims accessClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	subject := claims.Subject
	if subject == "" {
		subject = claims.UserID
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	kind := SubjectUser
	if claims.Kind == string(SubjectServiceClient) {
		kind = SubjectServiceClient
	}

	audience := ""
	if len(claims.Audience) > 0 {
		audience = claims.Audience[0]
	}

	return &Identity{
		SubjectKind:  kind,
		SubjectID:    subject,
		Role:         claims.Role,
		Audience:     audience,
		TenantID:     claims.ChurchID,
		MembershipID: claims.MembershipID,
		Source:       v.source,
	}, nil
}
