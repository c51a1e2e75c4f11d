package authflow

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// assertionClaims is the subset of identity-assertion claims the client
// reads. The assertion is otherwise opaque: the client never verifies the
// signature, it only inspects claim transport to decide when a refresh is
// needed before handing the token to the backend.
type assertionClaims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

var assertionParser = jwt.NewParser()

func peekAssertion(token string) (*assertionClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := assertionParser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	out := &assertionClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// assertionExpired reports whether the assertion carries an exp claim in
// the past (with a small skew allowance). Unparseable assertions are not
// treated as expired here; the backend is the authority on validity.
func assertionExpired(token string, now time.Time) bool {
	claims, err := peekAssertion(token)
	if err != nil {
		return false
	}
	if claims.ExpiresAt.IsZero() {
		return false
	}
	return now.After(claims.ExpiresAt.Add(30 * time.Second))
}
