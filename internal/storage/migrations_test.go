package storage

import (
	"strings"
	"testing"
)

func TestSchema_Idempotent(t *testing.T) {
	for i, ddl := range schema {
		if !strings.Contains(ddl, "IF NOT EXISTS") {
			t.Errorf("schema step %d is not idempotent:\n%s", i+1, ddl)
		}
	}
}

func TestSchema_TablesBeforeIndexes(t *testing.T) {
	created := map[string]bool{}
	for i, ddl := range schema {
		fields := strings.Fields(ddl)
		switch {
		case strings.HasPrefix(ddl, "CREATE TABLE"):
			created[fields[5]] = true
		case strings.HasPrefix(ddl, "CREATE INDEX"):
			table := fields[7]
			if !created[table] {
				t.Errorf("schema step %d indexes %q before it is created", i+1, table)
			}
		}
	}
	for _, table := range []string{"players", "matches", "match_participants"} {
		if !created[table] {
			t.Errorf("table %q is never created", table)
		}
	}
}
