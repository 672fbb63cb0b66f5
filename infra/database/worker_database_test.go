package database

import "testing"

func TestSimpleProtocolURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@h/db", "postgres://u:p@h/db?default_query_exec_mode=simple_protocol"},
		{"postgres://u:p@h/db?sslmode=disable", "postgres://u:p@h/db?sslmode=disable&default_query_exec_mode=simple_protocol"},
		{"postgres://h/db?default_query_exec_mode=exec", "postgres://h/db?default_query_exec_mode=exec"},
	}
	for _, tt := range tests {
		if got := SimpleProtocolURL(tt.in); got != tt.want {
			t.Errorf("SimpleProtocolURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultPostgresConfig(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "7")
	if got := DefaultPostgresConfig().MaxConns; got != 7 {
		t.Errorf("MaxConns = %d, want 7", got)
	}

	t.Setenv("DB_MAX_CONNS", "nope")
	if got := DefaultPostgresConfig().MaxConns; got != 10 {
		t.Errorf("MaxConns = %d, want 10", got)
	}
}
