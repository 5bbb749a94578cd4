package topology

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestInitialLoadClientNotRegistered(t *testing.T) {
	f := newFakeDB()
	f.nodes["remote"] = "remote"

	_, err := RequestInitialLoad(context.Background(), f, "local-abc", "remote")
	assert.ErrorIs(t, err, ErrClientNotRegistered)
}

func TestRequestInitialLoadSchemaNotReady(t *testing.T) {
	f := newFakeDB()
	f.tables["public.sym_table_reload_request"] = false

	_, err := RequestInitialLoad(context.Background(), f, "local-abc", "remote")
	assert.ErrorIs(t, err, ErrSchemaNotReady)
}

func TestRequestInitialLoadQueuesAllTables(t *testing.T) {
	f := newFakeDB()
	f.nodes["local-abc"] = "001"
	f.nodes["remote"] = "000"
	f.public = []string{"clients", "payments", "visits"}

	n, err := RequestInitialLoad(context.Background(), f, "local-abc", "remote")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, f.execSQL, 3)
	for i, table := range f.public {
		assert.Contains(t, f.execSQL[i], "sym_table_reload_request")
		assert.Equal(t, []any{"001", "000", ToClientsRouter, ChannelID, table}, f.execArgs[i])
	}
}

func TestRequestInitialLoadSoftFailsPerTable(t *testing.T) {
	f := newFakeDB()
	f.nodes["local-abc"] = "001"
	f.nodes["remote"] = "000"
	f.public = []string{"clients", "locked", "payments"}
	f.execErr = func(sql string, args []any) error {
		if args[4] == "locked" {
			return errors.New("lock timeout")
		}
		return nil
	}

	n, err := RequestInitialLoad(context.Background(), f, "local-abc", "remote")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRequestInitialLoadMissingServerNode(t *testing.T) {
	f := newFakeDB()
	f.nodes["local-abc"] = "001"

	_, err := RequestInitialLoad(context.Background(), f, "local-abc", "remote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote")
}

func TestSchemaReady(t *testing.T) {
	f := newFakeDB()
	assert.True(t, SchemaReady(context.Background(), f))

	f.tables["public.sym_context"] = false
	assert.False(t, SchemaReady(context.Background(), f))
}
