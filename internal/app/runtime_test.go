package app

import (
	"testing"

	_ "github.com/keystone-iam/keystone/internal/testing/guard"
)

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	if !InTestMode() {
		t.Fatal("expected test mode to be detected under the guard import")
	}
}
