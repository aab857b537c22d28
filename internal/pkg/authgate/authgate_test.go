package authgate

import "testing"

func TestRequireAuth(t *testing.T) {
	d := RequireAuth(Viewer{LoggedIn: false}, "/account?tab=billing")
	if d.Authorized {
		t.Fatalf("expected anonymous viewer to be denied")
	}
	if d.RedirectTo != "/auth/login?redirectTo=%2Faccount%3Ftab%3Dbilling" {
		t.Fatalf("unexpected redirect target: %q", d.RedirectTo)
	}

	if d := RequireAuth(Viewer{LoggedIn: true}, "/account"); !d.Authorized {
		t.Fatalf("expected logged-in viewer to pass")
	}
}

func TestRequireFullAuth(t *testing.T) {
	d := RequireFullAuth(Viewer{LoggedIn: true, EmailVerified: false}, "/account")
	if d.Authorized || d.RedirectTo != "/auth/verify-email" {
		t.Fatalf("expected unverified viewer to be sent to verification, got %+v", d)
	}
	if d := RequireFullAuth(Viewer{LoggedIn: true, EmailVerified: true}, "/account"); !d.Authorized {
		t.Fatalf("expected verified viewer to pass")
	}
}

func TestRequirePaidSubscription(t *testing.T) {
	tests := []struct {
		name string
		v    Viewer
		want bool
	}{
		{name: "anonymous", v: Viewer{}, want: false},
		{name: "free user", v: Viewer{LoggedIn: true, EmailVerified: true}, want: false},
		{name: "paid user", v: Viewer{LoggedIn: true, EmailVerified: true, PaidAccess: true}, want: true},
	}

	for _, tt := range tests {
		d := RequirePaidSubscription(tt.v)
		if d.Authorized != tt.want {
			t.Fatalf("%s: got authorized=%v, want %v", tt.name, d.Authorized, tt.want)
		}
		if !tt.want && d.RedirectTo != "/pricing" {
			t.Fatalf("%s: expected redirect to /pricing, got %q", tt.name, d.RedirectTo)
		}
	}
}

func TestRedirectIfAuthenticated(t *testing.T) {
	if d := RedirectIfAuthenticated(Viewer{}, "/account"); !d.Authorized {
		t.Fatalf("anonymous viewer should stay on the auth page")
	}

	d := RedirectIfAuthenticated(Viewer{LoggedIn: true, EmailVerified: true}, "/account")
	if d.Authorized || d.RedirectTo != "/account" {
		t.Fatalf("expected redirect to /account, got %+v", d)
	}

	d = RedirectIfAuthenticated(Viewer{LoggedIn: true, EmailVerified: true}, "https://evil.example")
	if d.RedirectTo != "/" {
		t.Fatalf("expected unsafe target to fall back to /, got %q", d.RedirectTo)
	}
}

func TestIsSafeRedirect(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "", want: false},
		{in: "/account", want: true},
		{in: "//evil.example", want: false},
		{in: "https://evil.example", want: false},
		{in: "/auth/login", want: false},
		{in: "/pricing?canceled=true", want: true},
	}

	for _, tt := range tests {
		if got := IsSafeRedirect(tt.in); got != tt.want {
			t.Fatalf("IsSafeRedirect(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
