package cql

import (
	"fmt"
	"strings"

	"github.com/roach88/cqlbridge/internal/codec"
	"github.com/roach88/cqlbridge/internal/driver"
)

// Explain renders a statement and its bind values for humans:
//
//	SELECT * FROM "ks"."t" WHERE "a" = ?
//	  [0] 'x'
func Explain(stmt driver.Statement) string {
	var b strings.Builder
	b.WriteString(stmt.CQL)
	b.WriteString("\n")
	for i, v := range stmt.Values {
		fmt.Fprintf(&b, "  [%d] %s\n", i, codec.Literal(v))
	}
	return b.String()
}
