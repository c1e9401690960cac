package iface

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/datacenterhub/idcbus/internal/errkind"
)

// CheckCredentials mirrors webserver.cpp's Login: exactly the count(*) check
// against the credentials table, enabled rows only.
func CheckCredentials(ctx context.Context, q Queryer, username, passwd string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM t_userinfo WHERE username = ? AND passwd = ? AND enabled = 1`,
		username, passwd,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("iface.CheckCredentials: %w", err)
	}
	return count > 0, nil
}

// CheckAuthorization mirrors CheckPerm: the user must have an authorization
// row for intername, AND the interface itself must be enabled.
func CheckAuthorization(ctx context.Context, q Queryer, username, intername string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM t_userandinter
		  WHERE username = ? AND intername = ?
		    AND intername IN (SELECT intername FROM t_intercfg WHERE enabled = 1)`,
		username, intername,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("iface.CheckAuthorization: %w", err)
	}
	return count == 1, nil
}

// LoadDefinition mirrors ExecSQL's first query against T_INTERCFG: fetch
// the interface's SQL, its comma-separated output column list, and its
// comma-separated bind-parameter list.
func LoadDefinition(ctx context.Context, q Queryer, intername string) (Definition, error) {
	var selectSQL, colstr, bindin string
	err := q.QueryRowContext(ctx,
		`SELECT select_sql, output_columns, input_parameters FROM t_intercfg WHERE intername = ? AND enabled = 1`,
		intername,
	).Scan(&selectSQL, &colstr, &bindin)
	if err == sql.ErrNoRows {
		return Definition{}, errkind.New(errkind.Forbidden, "iface.LoadDefinition", fmt.Errorf("unknown or disabled interface %q", intername))
	}
	if err != nil {
		return Definition{}, fmt.Errorf("iface.LoadDefinition(%s): %w", intername, err)
	}
	return Definition{
		Name:            intername,
		SelectSQL:       selectSQL,
		OutputColumns:   splitCSV(colstr),
		InputParameters: splitCSV(bindin),
		Enabled:         true,
	}, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
