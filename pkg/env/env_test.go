package env

import "testing"

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("PICKFLOW_TEST_VALUE", "   ")
	if got := Get("PICKFLOW_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}

	t.Setenv("PICKFLOW_TEST_VALUE", " set ")
	if got := Get("PICKFLOW_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestFirstHonoursOrder(t *testing.T) {
	t.Setenv("PICKFLOW_TEST_A", "")
	t.Setenv("PICKFLOW_TEST_B", "b")
	t.Setenv("PICKFLOW_TEST_C", "c")

	if got := First("PICKFLOW_TEST_A", "PICKFLOW_TEST_B", "PICKFLOW_TEST_C"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := First("PICKFLOW_TEST_A"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
