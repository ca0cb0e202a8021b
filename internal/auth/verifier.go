// Package auth provides bearer token verification helpers.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Roles, in decreasing privilege.
const (
	RoleAdmin   = "admin"
	RolePlanner = "planner"
	RoleViewer  = "viewer"
)

// AnyCity in the city claim grants access to every city.
const AnyCity = "*"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
)

// Verifier validates bearer tokens and extracts city/role claims.
// Supports modes: dev (token is "city:role", no verification) and hmac (HS256 JWT).
type Verifier struct {
	Mode         string
	HMACSecret   []byte
	CityClaim    string
	RoleClaim    string
	SubjectClaim string
	now          func() time.Time
}

type Principal struct {
	City    string
	Role    string
	Subject string
}

func NewVerifier(mode, secret string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:         mode,
		HMACSecret:   []byte(secret),
		CityClaim:    "city",
		RoleClaim:    "role",
		SubjectClaim: "sub",
		now:          time.Now,
	}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		parts := strings.Split(token, ":")
		if len(parts) >= 2 && parts[0] != "" {
			return Principal{City: parts[0], Role: normalizeRole(parts[1])}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected city:role")
	}
	if v.Mode != "hmac" {
		return Principal{}, errors.New("unsupported auth mode")
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, ErrInvalidToken
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	var hdr map[string]any
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, ErrInvalidToken
	}
	if alg, _ := hdr["alg"].(string); alg != "HS256" {
		return Principal{}, errors.New("unsupported alg for hmac")
	}
	if !hmac.Equal(v.sign(segs[0]+"."+segs[1]), sig) {
		return Principal{}, errors.New("bad signature")
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, ErrInvalidToken
	}
	if exp, ok := claims["exp"].(float64); ok && v.clock().Unix() >= int64(exp) {
		return Principal{}, ErrExpired
	}
	city, _ := claims[v.CityClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	sub, _ := claims[v.SubjectClaim].(string)
	if city == "" {
		return Principal{}, errors.New("missing city claim")
	}
	return Principal{City: city, Role: normalizeRole(role), Subject: sub}, nil
}

// Issue mints an HS256 token; ttl <= 0 omits exp.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	claims := map[string]any{v.CityClaim: p.City, v.RoleClaim: p.Role}
	if p.Subject != "" {
		claims[v.SubjectClaim] = p.Subject
	}
	if ttl > 0 {
		claims["exp"] = v.clock().Add(ttl).Unix()
	}
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := b64urlEncode(hdr) + "." + b64urlEncode(body)
	return input + "." + b64urlEncode(v.sign(input)), nil
}

func (v *Verifier) sign(input string) []byte {
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(input))
	return mac.Sum(nil)
}

func (v *Verifier) clock() time.Time {
	if v.now == nil {
		return time.Now()
	}
	return v.now()
}

// Can reports whether the principal may act on city with at least role.
func (p Principal) Can(city, role string) bool {
	if p.City != AnyCity && p.City != city {
		return false
	}
	return rank(p.Role) >= rank(role)
}

func rank(role string) int {
	switch role {
	case RoleAdmin:
		return 3
	case RolePlanner:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// unknown roles collapse to viewer
func normalizeRole(r string) string {
	r = strings.ToLower(strings.TrimSpace(r))
	if rank(r) == 0 {
		return RoleViewer
	}
	return r
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
func b64urlEncode(b []byte) string          { return base64.RawURLEncoding.EncodeToString(b) }
