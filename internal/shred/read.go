package shred

import (
	"github.com/gocql/gocql"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Stored is a document read back from a collection row.
type Stored struct {
	Doc  ir.Object
	TxID gocql.UUID
}

// ReadRow decodes the doc_json and tx_id columns of a collection row.
func ReadRow(row map[string]any) (Stored, error) {
	raw, ok := row[schema.ColDocJSON].(string)
	if !ok {
		return Stored{}, apierr.Internal("collection row without %s", schema.ColDocJSON)
	}
	doc, err := ir.UnmarshalObject([]byte(raw))
	if err != nil {
		return Stored{}, apierr.Internal("decode stored document: %v", err)
	}

	var tx gocql.UUID
	switch v := row[schema.ColTxID].(type) {
	case gocql.UUID:
		tx = v
	case string:
		if tx, err = gocql.ParseUUID(v); err != nil {
			return Stored{}, apierr.Internal("decode %s: %v", schema.ColTxID, err)
		}
	case nil:
	default:
		return Stored{}, apierr.Internal("unexpected %s value of type %T", schema.ColTxID, v)
	}
	return Stored{Doc: doc, TxID: tx}, nil
}
