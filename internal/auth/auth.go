package auth

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/errors"
	"github.com/pathwise/pathwise/internal/store"
)

// Claims is the accepted token payload. Tokens are minted by the identity
// service; this package only verifies them.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret string
	Users  store.Users
}

// Verifier turns a bearer token into a loaded user record.
type Verifier struct {
	secret []byte
	users  store.Users
}

func NewVerifier(c Config) *Verifier {
	return &Verifier{
		secret: []byte(c.Secret),
		users:  c.Users,
	}
}

// VerifyToken validates an HS256 token and resolves the user it names.
func (v *Verifier) VerifyToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("no token provided"))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err))
	}

	u, err := v.users.GetByEmail(ctx, claims.Email)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found"))
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	return u, nil
}
