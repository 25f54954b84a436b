package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// record is the at-rest envelope of one value. Version grows by one on
// every write and lets concurrent writers detect each other.
type record struct {
	Version    uint64 `cbor:"1,keyasint"`
	Nonce      []byte `cbor:"2,keyasint"`
	Ciphertext []byte `cbor:"3,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func (r record) marshal() ([]byte, error) {
	return encMode.Marshal(r)
}

func unmarshalRecord(raw []byte) (record, error) {
	var r record
	if err := cbor.Unmarshal(raw, &r); err != nil {
		return record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
