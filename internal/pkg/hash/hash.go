package hash

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// FastKey hashes s into a short hex token. Used to build redis keys from
// arbitrary client identifiers without leaking them into key names.
func FastKey(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
