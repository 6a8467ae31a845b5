package httpx

import "testing"

func TestValidateRequestTargetOriginForm(t *testing.T) {
	form, err := ValidateRequestTarget("/path?q=1")
	if err != nil || form != FormOrigin {
		t.Fatalf("form=%v err=%v, want FormOrigin/nil", form, err)
	}
}

func TestValidateRequestTargetAbsoluteForm(t *testing.T) {
	for _, raw := range []string{"http://example.com/path", "https://example.com/"} {
		form, err := ValidateRequestTarget(raw)
		if err != nil || form != FormAbsolute {
			t.Fatalf("ValidateRequestTarget(%q) = %v, %v; want FormAbsolute/nil", raw, form, err)
		}
	}
}

func TestValidateRequestTargetAsteriskForm(t *testing.T) {
	form, err := ValidateRequestTarget("*")
	if err != nil || form != FormAsterisk {
		t.Fatalf("form=%v err=%v, want FormAsterisk/nil", form, err)
	}
}

func TestValidateRequestTargetRejectsEmpty(t *testing.T) {
	if _, err := ValidateRequestTarget(""); err != ErrEmptyTarget {
		t.Fatalf("err = %v, want ErrEmptyTarget", err)
	}
}

func TestValidateRequestTargetRejectsWhitespace(t *testing.T) {
	if _, err := ValidateRequestTarget("/a b"); err != ErrInvalidTargetChar {
		t.Fatalf("err = %v, want ErrInvalidTargetChar", err)
	}
}

func TestValidateRequestTargetRejectsMalformedForm(t *testing.T) {
	cases := []string{"bad target", "relative/no/leading/slash", "ftp://x/y"}
	for _, raw := range cases {
		if _, err := ValidateRequestTarget(raw); err != ErrInvalidTargetChar {
			t.Fatalf("ValidateRequestTarget(%q) err = %v, want ErrInvalidTargetChar", raw, err)
		}
	}
}
