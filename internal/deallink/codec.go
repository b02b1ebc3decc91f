// Package deallink turns numeric deal ids into opaque references for
// client-visible links and back. It obscures ids; it is not an access control.
package deallink

import (
	"strconv"

	"github.com/yourdeals/deals-web/internal/seal"
	"github.com/yourdeals/deals-web/services"
)

const purpose = "deal-link"

// Codec encodes and decodes deal references.
type Codec struct {
	sealer *seal.Sealer
}

// NewCodec creates a codec keyed by secret.
func NewCodec(secret string) (*Codec, error) {
	sealer, err := seal.New(secret, purpose)
	if err != nil {
		return nil, err
	}
	return &Codec{sealer: sealer}, nil
}

// Encode returns an opaque reference for dealID.
func (c *Codec) Encode(dealID int64) (string, error) {
	ref, err := c.sealer.Seal([]byte(strconv.FormatInt(dealID, 10)))
	if err != nil {
		return "", services.WrapInternal("encode deal reference", err)
	}
	return ref, nil
}

// Decode reverses Encode. Anything that does not open to a positive
// integer is ErrInvalidDealRef.
func (c *Codec) Decode(ref string) (int64, error) {
	plain, err := c.sealer.Open(ref)
	if err != nil {
		return 0, services.ErrInvalidDealRef.Wrap(err)
	}
	id, err := strconv.ParseInt(string(plain), 10, 64)
	if err != nil || id <= 0 {
		return 0, services.ErrInvalidDealRef
	}
	return id, nil
}
