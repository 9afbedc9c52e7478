package vkcore

import "testing"

func TestCookieAllocatorMonotonicAndNonZero(t *testing.T) {
	var c CookieAllocator
	first := c.NewCookie()
	if first == 0 {
		t.Fatal("first NewCookie returned 0; zero must mean uninitialized")
	}
	second := c.NewCookie()
	if second <= first {
		t.Fatalf("NewCookie is not monotonically increasing:\nhave %d then %d", first, second)
	}
}

func TestCookieAllocatorUnique(t *testing.T) {
	var c CookieAllocator
	seen := map[Cookie]bool{}
	for i := 0; i < 100; i++ {
		got := c.NewCookie()
		if seen[got] {
			t.Fatalf("NewCookie produced a duplicate: %d", got)
		}
		seen[got] = true
	}
}
