package document

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Hash computes the 128-bit content hash over the field values.
// encoding/json sorts map keys, so equal contents hash equally regardless of key order.
func Hash(data map[string]any) string {
	b, err := json.Marshal(Fields(data))
	if err != nil {
		b = []byte(fmt.Sprint(Fields(data)))
	}
	h := xxh3.Hash128(b)
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}
