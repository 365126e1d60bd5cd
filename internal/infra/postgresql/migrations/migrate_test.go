package migrations

import "testing"

func TestMigrationsAreOrderedAndUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	prev := ""
	for _, m := range all() {
		if m.ID == "" {
			t.Fatal("migration with empty ID")
		}
		if _, ok := seen[m.ID]; ok {
			t.Fatalf("duplicate migration ID %q", m.ID)
		}
		if m.ID <= prev {
			t.Fatalf("migration %q is out of order after %q", m.ID, prev)
		}
		if m.Migrate == nil || m.Rollback == nil {
			t.Fatalf("migration %q must define Migrate and Rollback", m.ID)
		}
		seen[m.ID] = struct{}{}
		prev = m.ID
	}
}
