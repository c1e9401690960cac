// Package iface implements the interface registry (C9): the declarative
// query catalog the HTTP data-bus server (C8) consults on every request —
// who may call what, and which pre-vetted SQL backs each named interface.
//
// Grounded on original_source/project/tools/c/webserver.cpp's Login,
// CheckPerm, and ExecSQL functions, which query T_USERINFO, T_USERANDINTER,
// and T_INTERCFG directly against the same database connection used for the
// interface's own SELECT — this package keeps that single-connection
// design rather than splitting control and business data across pools.
package iface

import (
	"context"
	"database/sql"
)

// Definition is one registered interface: its SQL, the positional bind
// order for inbound query-string parameters, and the columns streamed back
// per row. Order in both slices is significant — it defines positional
// binding, exactly as spec'd.
type Definition struct {
	Name            string
	SelectSQL       string
	OutputColumns   []string
	InputParameters []string
	Enabled         bool
}

// Queryer is the subset of *sql.Conn / *sql.DB this package needs. Callers
// pass in whatever connection C7 handed out for the current request.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
