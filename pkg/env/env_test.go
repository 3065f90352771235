package env

import "testing"

func TestGetTrimsAndFallsBack(t *testing.T) {
	t.Setenv("SHOPFLOW_TEST_VALUE", "  ")
	if got := Get("SHOPFLOW_TEST_VALUE", "json"); got != "json" {
		t.Fatalf("expected fallback for blank value, got %q", got)
	}

	t.Setenv("SHOPFLOW_TEST_VALUE", " console ")
	if got := Get("SHOPFLOW_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestFirst(t *testing.T) {
	t.Setenv("SHOPFLOW_TEST_A", "")
	t.Setenv("SHOPFLOW_TEST_B", "b")
	if got := First("SHOPFLOW_TEST_A", "SHOPFLOW_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := First("SHOPFLOW_TEST_A"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
