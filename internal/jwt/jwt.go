package jwt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type UserToken struct {
	UserID   int64  `json:"userID,string"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer signs and verifies access and refresh tokens. The two kinds use
// separate secrets so one can never be passed off as the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func (i *Issuer) AccessToken(userID int64, username string) (string, error) {
	return i.sign(i.accessSecret, i.accessTTL, userID, username)
}

// RefreshToken returns the signed token and its expiry instant.
func (i *Issuer) RefreshToken(userID int64, username string) (string, time.Time, error) {
	token, err := i.sign(i.refreshSecret, i.refreshTTL, userID, username)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, i.now().UTC().Add(i.refreshTTL), nil
}

func (i *Issuer) VerifyAccess(tokenString string) (UserToken, error) {
	return i.verify(i.accessSecret, tokenString)
}

func (i *Issuer) VerifyRefresh(tokenString string) (UserToken, error) {
	return i.verify(i.refreshSecret, tokenString)
}

func (i *Issuer) sign(secret []byte, lifetime time.Duration, userID int64, username string) (string, error) {
	currentTime := i.now().UTC()

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, UserToken{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(lifetime)),
		},
	})

	return token.SignedString(secret)
}

func (i *Issuer) verify(secret []byte, tokenString string) (UserToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserToken{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return UserToken{}, err
	} else if claims, ok := token.Claims.(*UserToken); ok && claims.UserID != 0 {
		return *claims, nil
	} else {
		return UserToken{}, ErrInvalidToken
	}
}

// HashToken is the form refresh tokens are stored in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
