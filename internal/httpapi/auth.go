package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

// TelegramUser is the subset of the Mini App user object we keep.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// ValidateInitData checks a Telegram Mini App initData string against the
// bot token. The signing key is HMAC-SHA256 of the bot token keyed with
// the literal "WebAppData"; the hash covers the remaining fields joined as
// sorted key=value lines.
func ValidateInitData(initData, botToken string, now time.Time, maxAge time.Duration) (TelegramUser, *authError) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return TelegramUser{}, &authError{status: 401, code: "unauthorized", message: "malformed init data"}
	}
	gotHash := values.Get("hash")
	if gotHash == "" {
		return TelegramUser{}, &authError{status: 401, code: "unauthorized", message: "missing init data hash"}
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+values.Get(key))
	}
	checkString := strings.Join(lines, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	secret := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(gotHash)), []byte(expected)) {
		return TelegramUser{}, &authError{status: 401, code: "unauthorized", message: "init data signature mismatch"}
	}

	if maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return TelegramUser{}, &authError{status: 401, code: "unauthorized", message: "invalid auth_date"}
		}
		if now.Sub(time.Unix(authDate, 0)) > maxAge {
			return TelegramUser{}, &authError{status: 401, code: "unauthorized", message: "init data expired"}
		}
	}

	var user TelegramUser
	if raw := values.Get("user"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return TelegramUser{}, &authError{status: 401, code: "unauthorized", message: "invalid user payload"}
		}
	}
	if user.ID == 0 {
		return TelegramUser{}, &authError{status: 401, code: "unauthorized", message: "missing user id"}
	}
	return user, nil
}

const tokenAudience = "worklife"

type sessionClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// IssueSessionToken mints an HS256 session token for a validated user.
func IssueSessionToken(secret string, user TelegramUser, now time.Time, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func authorizeBearer(authHeader, secret string, now time.Time) (sessionClaims, *authError) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return sessionClaims{}, &authError{status: 401, code: "unauthorized", message: "missing or invalid bearer token"}
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return sessionClaims{}, &authError{status: 401, code: "unauthorized", message: "invalid session token"}
	}
	if claims.Subject == "" {
		return sessionClaims{}, &authError{status: 401, code: "unauthorized", message: "missing subject claim"}
	}
	return claims, nil
}
