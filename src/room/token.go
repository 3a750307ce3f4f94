package room

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoomGrant describes what a participant may do in a room
type RoomGrant struct {
	Room         string `json:"room"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
	Agent        bool   `json:"agent"`
}

// Claims is the JWT claim set used for room access tokens
type Claims struct {
	jwt.RegisteredClaims
	Grant RoomGrant `json:"grant"`
}

// AccessToken mints signed room access tokens from an API key/secret pair.
// The key identifies the project (iss), the secret signs with HS256.
type AccessToken struct {
	apiKey    string
	apiSecret string
	identity  string
	grant     RoomGrant
	ttl       time.Duration
}

// NewAccessToken creates a token builder for the given credentials
func NewAccessToken(apiKey, apiSecret string) *AccessToken {
	return &AccessToken{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		ttl:       6 * time.Hour,
	}
}

// WithIdentity sets the participant identity (JWT sub)
func (t *AccessToken) WithIdentity(identity string) *AccessToken {
	t.identity = identity
	return t
}

// WithGrant sets the room grant
func (t *AccessToken) WithGrant(grant RoomGrant) *AccessToken {
	t.grant = grant
	return t
}

// WithTTL overrides the default 6 hour validity
func (t *AccessToken) WithTTL(ttl time.Duration) *AccessToken {
	t.ttl = ttl
	return t
}

// ToJWT signs and serializes the token
func (t *AccessToken) ToJWT() (string, error) {
	if t.apiKey == "" || t.apiSecret == "" {
		return "", fmt.Errorf("api key and secret are required")
	}
	if t.identity == "" {
		return "", fmt.Errorf("identity is required")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.apiKey,
			Subject:   t.identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Grant: t.grant,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(t.apiSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a token against the API secret,
// returning its claims. Used by tests and by anything terminating the
// signaling socket locally.
func VerifyToken(token, apiSecret string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return []byte(apiSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
