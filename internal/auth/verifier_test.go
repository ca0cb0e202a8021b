package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDevTokens(t *testing.T) {
	v := NewVerifier("", "")
	p, err := v.Verify("paris:Planner")
	if err != nil || p.City != "paris" || p.Role != RolePlanner {
		t.Fatalf("dev token: %+v %v", p, err)
	}
	if p, _ := v.Verify("paris:driver"); p.Role != RoleViewer {
		t.Fatalf("unknown role should collapse to viewer, got %q", p.Role)
	}
	if _, err := v.Verify("paris"); err == nil {
		t.Fatal("expected error for token without role")
	}
}

func TestHMACIssueVerify(t *testing.T) {
	v := NewVerifier("hmac", "s3cret")
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }

	tok, err := v.Issue(Principal{City: "lyon", Role: RoleAdmin, Subject: "ops-1"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	p, err := v.Verify(tok)
	if err != nil || p.City != "lyon" || p.Role != RoleAdmin || p.Subject != "ops-1" {
		t.Fatalf("verify: %+v %v", p, err)
	}

	other := NewVerifier("hmac", "different")
	if _, err := other.Verify(tok); err == nil {
		t.Fatal("token signed with another secret accepted")
	}

	segs := strings.Split(tok, ".")
	if _, err := v.Verify(segs[0] + "." + b64urlEncode([]byte(`{"city":"*","role":"admin"}`)) + "." + segs[2]); err == nil {
		t.Fatal("tampered payload accepted")
	}

	now = now.Add(2 * time.Hour)
	if _, err := v.Verify(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
	if _, err := v.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestHMACRequiresCity(t *testing.T) {
	v := NewVerifier("hmac", "k")
	tok, _ := v.Issue(Principal{Role: RoleAdmin}, 0)
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("token without city accepted")
	}
}

func TestPrincipalCan(t *testing.T) {
	cases := []struct {
		p    Principal
		city string
		role string
		want bool
	}{
		{Principal{City: "paris", Role: RoleAdmin}, "paris", RolePlanner, true},
		{Principal{City: "paris", Role: RoleViewer}, "paris", RolePlanner, false},
		{Principal{City: "paris", Role: RoleAdmin}, "lyon", RoleViewer, false},
		{Principal{City: AnyCity, Role: RolePlanner}, "lyon", RolePlanner, true},
		{Principal{City: AnyCity, Role: RolePlanner}, "lyon", RoleAdmin, false},
	}
	for _, c := range cases {
		if got := c.p.Can(c.city, c.role); got != c.want {
			t.Errorf("%+v.Can(%s,%s)=%v want %v", c.p, c.city, c.role, got, c.want)
		}
	}
}
