// Package identity derives deterministic, content-based identifiers for
// lineage graph nodes so that the same logical dataset, column or transform
// maps to the same id across independent runs.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// idLength is the number of hex characters kept from the digest.
const idLength = 16

// paramsHashLength is the number of hex characters kept for parameter hashes.
const paramsHashLength = 12

// ID returns a fixed-length opaque token for the ordered parts.
// Every part is length-prefixed before hashing, so ("a|b") and ("a", "b")
// never collide, and an empty part still contributes to the digest.
func ID(parts ...string) string {
	return digest(idLength, parts...)
}

// ColumnID returns the id of the column named column in dataset datasetID.
func ColumnID(datasetID, column string) string {
	return ID(datasetID, column)
}

// ParamsHash summarizes a transform's declared configuration. The value is
// canonicalized through JSON, which sorts map keys, so two equal
// configurations always hash the same regardless of map iteration order.
func ParamsHash(cfg any) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return digest(paramsHashLength, string(b)), nil
}

func digest(n int, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	// Part count terminates the stream so trailing empty parts are significant.
	h.Write([]byte{'#'})
	h.Write([]byte(strconv.Itoa(len(parts))))
	return hex.EncodeToString(h.Sum(nil))[:n]
}
