package postgres

import (
	"testing"
)

func TestDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"verbatim", Config{DSN: "postgres://x/y", Host: "ignored"}, "postgres://x/y"},
		{"defaults", Config{Host: "db", User: "app", Password: "pw", Database: "cointrend"}, "postgres://app:pw@db:5432/cointrend?sslmode=disable"},
		{"custom", Config{Host: "db", Port: 6543, User: "u", Database: "d", SSLMode: "require"}, "postgres://u:@db:6543/d?sslmode=require"},
	}
	for _, tc := range cases {
		if got := DSN(tc.cfg); got != tc.want {
			t.Errorf("%s: DSN = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(names) == 0 || names[0] != "0001_init.sql" {
		t.Fatalf("unexpected migrations %v", names)
	}
}
