package databus

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/datacenterhub/idcbus/internal/dbpool"
	"github.com/datacenterhub/idcbus/internal/iface"
)

const httpHeader = "HTTP/1.1 200 OK\r\nServer: idcbus\r\nContent-Type: text/html; charset=utf-8\r\n\r\n"

// writeCanned sends the full header-plus-status response webserver.cpp
// sends for every early failure (auth, permission, internal error) — the
// original never separates header and body in these paths, so neither do
// we.
func writeCanned(conn net.Conn, retcode int, message string) {
	fmt.Fprintf(conn, "%s<retcode>%d</retcode><message>%s</message>", httpHeader, retcode, message)
}

// writeHeader sends just the HTTP header, used once the request has
// cleared auth/permission and is about to stream a status line plus rows.
func writeHeader(conn net.Conn) {
	fmt.Fprint(conn, httpHeader)
}

// execAndStream prepares def.SelectSQL, binds InputParameters positionally
// from the query string, and streams the result set as pseudo-XML: a
// status line, <data>, one <col>value</col> run plus <endl/> per row, then
// </data> — exactly webserver.cpp's ExecSQL wire format.
func execAndStream(ctx context.Context, conn net.Conn, c *dbpool.Conn, def iface.Definition, query url.Values) error {
	args := make([]any, len(def.InputParameters))
	for i, name := range def.InputParameters {
		args[i] = query.Get(name)
	}

	rows, err := c.DB().QueryContext(ctx, def.SelectSQL, args...)
	if err != nil {
		fmt.Fprintf(conn, "<retcode>-1</retcode><message>%s</message>\n", err.Error())
		return err
	}
	defer rows.Close()

	fmt.Fprint(conn, "<retcode>0</retcode><message>ok</message>\n")
	fmt.Fprint(conn, "<data>\n")

	dest := make([]any, len(def.OutputColumns))
	vals := make([]string, len(def.OutputColumns))
	for i := range dest {
		dest[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		for i, col := range def.OutputColumns {
			fmt.Fprintf(conn, "<%s>%s</%s>", col, vals[i], col)
		}
		fmt.Fprint(conn, "<endl/>\n")
	}
	fmt.Fprint(conn, "</data>\n")
	return rows.Err()
}
