package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://a@b/c", Host: "ignored"},
			want: "postgres://a@b/c",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{Host: "localhost", Database: "envy", User: "u", Password: "p"},
			want: "postgres://u:p@localhost:5432/envy?sslmode=disable",
		},
		{
			name: "escapes password",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "envy", User: "u", Password: "p@ss/word", SSLMode: "require"},
			want: "postgres://u:p%40ss%2Fword@db:6543/envy?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.Equal(t, "001_init.sql", names[0])

	data, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	for _, table := range []string{"settlements", "token_prices", "trade_envy", "response_cache"} {
		assert.True(t, strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table+" "), table)
	}
}
