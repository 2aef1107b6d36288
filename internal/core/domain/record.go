package domain

// SatUnknown marks a record whose sat number has not been enriched yet.
// The sat attribute is optional and filled in lazily; it is never
// required for correctness.
const SatUnknown int64 = -1

// BlockRecord is one row of the bitmap dataset: the inscription that
// claimed a given block number. A record exists only for blocks where a
// lookup confirmed an inscription is present; confirmed-empty blocks
// have no row.
type BlockRecord struct {
	BlockNumber   uint64
	InscriptionID string
	Sat           int64
}

// HasSat reports whether the optional sat attribute has been filled in.
func (r BlockRecord) HasSat() bool {
	return r.Sat >= 0
}
