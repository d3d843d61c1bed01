package db

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_SQLiteAndMigrate(t *testing.T) {
	gdb, err := Connect(context.Background(), "sqlite", "file:dbtest?mode=memory&cache=shared", time.Second, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(gdb) })

	require.NoError(t, Migrate(gdb))
	for _, table := range []string{"users", "chat_conversations", "chat_messages", "shared_snapshots"} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
}

func TestConnect_Rejects(t *testing.T) {
	_, err := Connect(context.Background(), "mysql", "", time.Second, zerolog.Nop())
	assert.Error(t, err)

	_, err = Connect(context.Background(), "oracle", "x", time.Second, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported")
}
