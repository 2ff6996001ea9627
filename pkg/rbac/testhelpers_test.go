package rbac

import (
	"testing"
)

func TestIsDatabaseAvailable(t *testing.T) {
	t.Run("returns true when env var is set", func(t *testing.T) {
		t.Setenv(TestDatabaseEnv, "postgres://test")
		if !IsDatabaseAvailable() {
			t.Error("Expected IsDatabaseAvailable to return true when env var is set")
		}
	})

	t.Run("returns false when env var is not set", func(t *testing.T) {
		t.Setenv(TestDatabaseEnv, "")
		if IsDatabaseAvailable() {
			t.Error("Expected IsDatabaseAvailable to return false when env var is not set")
		}
	})
}
