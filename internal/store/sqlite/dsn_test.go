package sqlite

import "testing"

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		want    string
		wantErr bool
	}{
		{name: "memory", dsn: "sqlite://:memory:", want: ":memory:"},
		{name: "absolute", dsn: "sqlite:///var/lib/world.db", want: "/var/lib/world.db"},
		{name: "relative dot", dsn: "sqlite://./world.db", want: "./world.db"},
		{name: "relative bare", dsn: "sqlite://world.db", want: "./world.db"},
		{name: "escaped", dsn: "sqlite://my%20world.db", want: "./my world.db"},
		{name: "query kept", dsn: "sqlite://world.db?_txlock=immediate", want: "./world.db?_txlock=immediate"},
		{name: "plain path", dsn: "data/world.db", want: "./data/world.db"},
		{name: "wrong scheme", dsn: "postgres://localhost/db", wantErr: true},
		{name: "empty", dsn: "sqlite://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDSN(tt.dsn)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseDSN(%q) expected error, got %q", tt.dsn, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDSN(%q) error: %v", tt.dsn, err)
			}
			if got != tt.want {
				t.Fatalf("parseDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}
