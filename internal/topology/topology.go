// Package topology configures the replication system tables on both sides
// of the pair: node groups, group links, the transport channel, routers, and
// per-table triggers. Every operation is idempotent so a crashed or repeated
// run converges to the same topology instead of duplicating rows.
package topology

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncbridge/syncbridge/internal/db"
	"github.com/syncbridge/syncbridge/internal/logger"
)

// Topology identifiers shared by both sides.
const (
	ServerGroup = "server"
	ClientGroup = "client"

	ChannelID = "default"

	ToClientsRouter = "toClients"
	ToServerRouter  = "toServer"
)

// ErrSchemaNotReady indicates the engine has not yet created its system
// tables on this side. Configuration is skipped, not failed; the engine
// creates the schema asynchronously after first start.
var ErrSchemaNotReady = errors.New("replication schema not ready")

// Side describes which direction a database configures: the router it owns
// and the groups it routes between.
type Side struct {
	Name        string
	RouterID    string
	SourceGroup string
	TargetGroup string
}

var (
	ServerSide = Side{Name: "server", RouterID: ToClientsRouter, SourceGroup: ServerGroup, TargetGroup: ClientGroup}
	ClientSide = Side{Name: "client", RouterID: ToServerRouter, SourceGroup: ClientGroup, TargetGroup: ServerGroup}
)

// Capabilities records which optional columns this side's system tables
// carry. Engine versions differ; probing once per side and branching in Go
// keeps the statements themselves static.
type Capabilities struct {
	RouterSyncConfig bool
	RouterEnabled    bool

	TriggerUseStreamLobs bool
	TriggerUsePKData     bool

	TriggerRouterCreateTime     bool
	TriggerRouterLastUpdateTime bool
}

// ProbeCapabilities inspects the installed schema version.
func ProbeCapabilities(ctx context.Context, q db.Querier) (Capabilities, error) {
	var caps Capabilities
	probes := []struct {
		table, column string
		dst           *bool
	}{
		{"sym_router", "sync_config", &caps.RouterSyncConfig},
		{"sym_router", "enabled", &caps.RouterEnabled},
		{"sym_trigger", "use_stream_lobs", &caps.TriggerUseStreamLobs},
		{"sym_trigger", "use_pk_data", &caps.TriggerUsePKData},
		{"sym_trigger_router", "create_time", &caps.TriggerRouterCreateTime},
		{"sym_trigger_router", "last_update_time", &caps.TriggerRouterLastUpdateTime},
	}
	for _, p := range probes {
		ok, err := db.ColumnExists(ctx, q, p.table, p.column)
		if err != nil {
			return Capabilities{}, err
		}
		*p.dst = ok
	}
	return caps, nil
}

// Configurator applies the topology to one side.
type Configurator struct {
	Q    db.Querier
	Side Side
	Caps Capabilities
}

// NewConfigurator verifies the system tables exist on this side and probes
// their schema version. Returns ErrSchemaNotReady when the engine has not
// created its tables yet.
func NewConfigurator(ctx context.Context, q db.Querier, side Side) (*Configurator, error) {
	ready, err := db.TablesExist(ctx, q,
		"public.sym_channel", "public.sym_router",
		"public.sym_node_group", "public.sym_node_group_link",
		"public.sym_trigger", "public.sym_trigger_router")
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, ErrSchemaNotReady
	}

	caps, err := ProbeCapabilities(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Configurator{Q: q, Side: side, Caps: caps}, nil
}

// Configure applies the complete topology for this side and returns the
// number of tables that got triggers.
func (c *Configurator) Configure(ctx context.Context) (int, error) {
	if err := c.EnsureNodeGroups(ctx); err != nil {
		return 0, err
	}
	if err := c.EnsureGroupLinks(ctx); err != nil {
		return 0, err
	}
	if err := c.EnsureChannel(ctx); err != nil {
		return 0, err
	}
	if err := c.EnsureRouter(ctx); err != nil {
		return 0, err
	}

	tables, err := db.ListPublicTables(ctx, c.Q)
	if err != nil {
		return 0, err
	}
	applied := c.EnsureTriggers(ctx, tables)

	logger.Info("topology configured", "side", c.Side.Name, "tables", applied)
	return applied, nil
}

// EnsureNodeGroups creates the server and client node groups if absent.
// Both sides carry both groups so configuration replicated later finds its
// references intact.
func (c *Configurator) EnsureNodeGroups(ctx context.Context) error {
	for _, group := range []string{ServerGroup, ClientGroup} {
		_, err := c.Q.Exec(ctx, `
			INSERT INTO sym_node_group (node_group_id)
			SELECT $1 WHERE NOT EXISTS (
				SELECT 1 FROM sym_node_group WHERE node_group_id = $1
			)`, group)
		if err != nil {
			return fmt.Errorf("error ensuring node group %s: %w", group, err)
		}
	}
	return nil
}

// EnsureGroupLinks creates the two directional links: server waits for the
// client to pull (W), the client pushes (P). A pre-existing link with an
// unrecognized action is corrected rather than trusted.
func (c *Configurator) EnsureGroupLinks(ctx context.Context) error {
	links := []struct {
		source, target, action string
	}{
		{ServerGroup, ClientGroup, "W"},
		{ClientGroup, ServerGroup, "P"},
	}
	for _, l := range links {
		_, err := c.Q.Exec(ctx, `
			INSERT INTO sym_node_group_link (source_node_group_id, target_node_group_id, data_event_action)
			SELECT $1, $2, $3 WHERE NOT EXISTS (
				SELECT 1 FROM sym_node_group_link
				 WHERE source_node_group_id = $1 AND target_node_group_id = $2
			)`, l.source, l.target, l.action)
		if err != nil {
			return fmt.Errorf("error ensuring group link %s->%s: %w", l.source, l.target, err)
		}
		_, err = c.Q.Exec(ctx, `
			UPDATE sym_node_group_link
			   SET data_event_action = $3
			 WHERE source_node_group_id = $1 AND target_node_group_id = $2
			   AND (data_event_action IS NULL OR data_event_action NOT IN ('W','P'))`,
			l.source, l.target, l.action)
		if err != nil {
			return fmt.Errorf("error correcting group link %s->%s: %w", l.source, l.target, err)
		}
	}
	return nil
}

// EnsureChannel creates the transport channel if absent.
func (c *Configurator) EnsureChannel(ctx context.Context) error {
	_, err := c.Q.Exec(ctx, `
		INSERT INTO sym_channel (channel_id, processing_order, queue, enabled, max_batch_size)
		SELECT $1, 1, 'default', 1, 1000 WHERE NOT EXISTS (
			SELECT 1 FROM sym_channel WHERE channel_id = $1
		)`, ChannelID)
	if err != nil {
		return fmt.Errorf("error ensuring channel %s: %w", ChannelID, err)
	}
	return nil
}

// EnsureRouter creates this side's router if absent, using whichever enable
// column the installed schema version carries.
func (c *Configurator) EnsureRouter(ctx context.Context) error {
	_, err := c.Q.Exec(ctx, c.routerInsertSQL(),
		c.Side.RouterID, c.Side.SourceGroup, c.Side.TargetGroup)
	if err != nil {
		return fmt.Errorf("error ensuring router %s: %w", c.Side.RouterID, err)
	}
	return nil
}

// routerInsertSQL picks the insert variant for the installed router schema.
func (c *Configurator) routerInsertSQL() string {
	switch {
	case c.Caps.RouterSyncConfig:
		return `
			INSERT INTO sym_router (router_id, source_node_group_id, target_node_group_id,
				router_type, router_expression, sync_config, create_time, last_update_time)
			SELECT $1, $2, $3, 'default', NULL, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (SELECT 1 FROM sym_router WHERE router_id = $1)`
	case c.Caps.RouterEnabled:
		return `
			INSERT INTO sym_router (router_id, source_node_group_id, target_node_group_id,
				router_type, router_expression, enabled, create_time, last_update_time)
			SELECT $1, $2, $3, 'default', NULL, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (SELECT 1 FROM sym_router WHERE router_id = $1)`
	default:
		return `
			INSERT INTO sym_router (router_id, source_node_group_id, target_node_group_id,
				router_type, router_expression, create_time, last_update_time)
			SELECT $1, $2, $3, 'default', NULL, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (SELECT 1 FROM sym_router WHERE router_id = $1)`
	}
}

// TriggerID maps a table to its trigger identifier.
func TriggerID(table string) string { return "trg_" + table }

// EnsureTriggers creates a trigger and trigger-router pair for every table.
// Per-table failures are logged and counted out, not fatal: one broken
// table must not keep the rest of the schema from replicating.
func (c *Configurator) EnsureTriggers(ctx context.Context, tables []string) int {
	applied := 0
	for _, table := range tables {
		if err := c.ensureTrigger(ctx, table); err != nil {
			logger.Warn("trigger setup failed", "side", c.Side.Name, "table", table, "error", err)
			continue
		}
		if err := c.ensureTriggerRouter(ctx, table); err != nil {
			logger.Warn("trigger router setup failed", "side", c.Side.Name, "table", table, "error", err)
			continue
		}
		applied++
	}
	return applied
}

func (c *Configurator) ensureTrigger(ctx context.Context, table string) error {
	_, err := c.Q.Exec(ctx, c.triggerInsertSQL(), TriggerID(table), table)
	return err
}

// triggerInsertSQL picks the insert variant for the installed trigger
// schema. All variants sync inserts, updates, and deletes on the default
// channel; LOB streaming stays off and primary-key capture on where the
// columns exist.
func (c *Configurator) triggerInsertSQL() string {
	switch {
	case c.Caps.TriggerUseStreamLobs && c.Caps.TriggerUsePKData:
		return `
			INSERT INTO sym_trigger (trigger_id, source_table_name, channel_id,
				sync_on_insert, sync_on_update, sync_on_delete,
				use_stream_lobs, use_pk_data, create_time, last_update_time)
			SELECT $1, $2, 'default', 1, 1, 1, 0, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (SELECT 1 FROM sym_trigger WHERE trigger_id = $1)`
	case c.Caps.TriggerUseStreamLobs:
		return `
			INSERT INTO sym_trigger (trigger_id, source_table_name, channel_id,
				sync_on_insert, sync_on_update, sync_on_delete,
				use_stream_lobs, create_time, last_update_time)
			SELECT $1, $2, 'default', 1, 1, 1, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (SELECT 1 FROM sym_trigger WHERE trigger_id = $1)`
	case c.Caps.TriggerUsePKData:
		return `
			INSERT INTO sym_trigger (trigger_id, source_table_name, channel_id,
				sync_on_insert, sync_on_update, sync_on_delete,
				use_pk_data, create_time, last_update_time)
			SELECT $1, $2, 'default', 1, 1, 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (SELECT 1 FROM sym_trigger WHERE trigger_id = $1)`
	default:
		return `
			INSERT INTO sym_trigger (trigger_id, source_table_name, channel_id,
				sync_on_insert, sync_on_update, sync_on_delete,
				create_time, last_update_time)
			SELECT $1, $2, 'default', 1, 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (SELECT 1 FROM sym_trigger WHERE trigger_id = $1)`
	}
}

func (c *Configurator) ensureTriggerRouter(ctx context.Context, table string) error {
	_, err := c.Q.Exec(ctx, c.triggerRouterInsertSQL(), TriggerID(table), c.Side.RouterID)
	return err
}

func (c *Configurator) triggerRouterInsertSQL() string {
	switch {
	case c.Caps.TriggerRouterCreateTime && c.Caps.TriggerRouterLastUpdateTime:
		return `
			INSERT INTO sym_trigger_router (trigger_id, router_id, initial_load_order,
				create_time, last_update_time)
			SELECT $1, $2, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (
				SELECT 1 FROM sym_trigger_router WHERE trigger_id = $1 AND router_id = $2
			)`
	case c.Caps.TriggerRouterCreateTime:
		return `
			INSERT INTO sym_trigger_router (trigger_id, router_id, initial_load_order, create_time)
			SELECT $1, $2, 1, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (
				SELECT 1 FROM sym_trigger_router WHERE trigger_id = $1 AND router_id = $2
			)`
	case c.Caps.TriggerRouterLastUpdateTime:
		return `
			INSERT INTO sym_trigger_router (trigger_id, router_id, initial_load_order, last_update_time)
			SELECT $1, $2, 1, CURRENT_TIMESTAMP
			WHERE NOT EXISTS (
				SELECT 1 FROM sym_trigger_router WHERE trigger_id = $1 AND router_id = $2
			)`
	default:
		return `
			INSERT INTO sym_trigger_router (trigger_id, router_id, initial_load_order)
			SELECT $1, $2, 1
			WHERE NOT EXISTS (
				SELECT 1 FROM sym_trigger_router WHERE trigger_id = $1 AND router_id = $2
			)`
	}
}
