package main

import (
	"strings"
	"testing"
)

func TestRunReturnsStartupError(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_DRIVER", "bogus")

	err := run()
	if err == nil || !strings.Contains(err.Error(), "unknown STORE_DRIVER") {
		t.Fatalf("err = %v", err)
	}
}
