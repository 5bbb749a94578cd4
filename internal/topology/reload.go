package topology

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/syncbridge/syncbridge/internal/db"
	"github.com/syncbridge/syncbridge/internal/logger"
)

// ErrClientNotRegistered indicates the client node has not registered on
// the server side yet. Retryable; registration happens asynchronously after
// the client engine starts.
var ErrClientNotRegistered = errors.New("client node not registered yet")

// readyTables are the system tables that must resolve before this side is
// considered schema-ready.
var readyTables = []string{
	"public.sym_channel",
	"public.sym_context",
	"public.sym_node",
	"public.sym_router",
	"public.sym_trigger",
	"public.sym_trigger_router",
	"public.sym_table_reload_request",
}

// SchemaReady reports whether the engine has finished creating its system
// tables on this side.
func SchemaReady(ctx context.Context, q db.Querier) bool {
	ok, err := db.TablesExist(ctx, q, readyTables...)
	return err == nil && ok
}

// RequestInitialLoad queues a full-table reload of every application table
// from the server to the registered client node. Runs against the server
// database. Idempotent: requests already queued for a table are left alone.
// Returns the number of tables requested, or ErrClientNotRegistered while
// the client is still unknown to the server.
func RequestInitialLoad(ctx context.Context, q db.Querier, clientExternalID, serverExternalID string) (int, error) {
	ok, err := db.TableExists(ctx, q, "public.sym_table_reload_request")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrSchemaNotReady
	}

	var targetNodeID string
	err = q.QueryRow(ctx,
		"SELECT node_id FROM sym_node WHERE external_id = $1", clientExternalID,
	).Scan(&targetNodeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrClientNotRegistered
	}
	if err != nil {
		return 0, fmt.Errorf("error looking up client node: %w", err)
	}

	var sourceNodeID string
	err = q.QueryRow(ctx,
		"SELECT node_id FROM sym_node WHERE external_id = $1", serverExternalID,
	).Scan(&sourceNodeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("server node %s missing from sym_node", serverExternalID)
	}
	if err != nil {
		return 0, fmt.Errorf("error looking up server node: %w", err)
	}

	tables, err := db.ListPublicTables(ctx, q)
	if err != nil {
		return 0, err
	}

	requested := 0
	for _, table := range tables {
		_, err := q.Exec(ctx, `
			INSERT INTO sym_table_reload_request (
				target_node_id, source_node_id, router_id, channel_id,
				table_name, create_table, delete_before_reload, reload_select,
				initial_load_id
			)
			SELECT $1, $2, $3, $4, $5, 1, 1, NULL, nextval('sym_sequence')
			WHERE NOT EXISTS (
				SELECT 1 FROM sym_table_reload_request
				 WHERE target_node_id = $1 AND table_name = $5
			)`, targetNodeID, sourceNodeID, ToClientsRouter, ChannelID, table)
		if err != nil {
			logger.Warn("reload request failed", "table", table, "error", err)
			continue
		}
		requested++
	}

	logger.Info("initial load requested", "node", clientExternalID, "tables", requested)
	return requested, nil
}
