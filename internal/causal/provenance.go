package causal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KernelVersion identifies the algorithm revision baked into every
// provenance record. Bump it whenever a change can alter output for
// identical inputs, so hash-keyed caches never mix revisions.
const KernelVersion = "1.3.0"

// Provenance lets callers key caches and storage by exactly what produced a
// result: the kernel revision plus the canonical parameter serialization
// and its content hash.
type Provenance struct {
	KernelVersion string `json:"kernel_version"`
	Parameters    string `json:"parameters"`
	ParamsHash    string `json:"params_hash"`
}

// NewProvenance serializes params canonically (JSON, declaration order) and
// hashes the bytes. Two Params values hash equal exactly when every field
// is equal.
func NewProvenance(p Params) (Provenance, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Provenance{}, fmt.Errorf("failed to serialize parameters: %w", err)
	}
	sum := sha256.Sum256(data)
	return Provenance{
		KernelVersion: KernelVersion,
		Parameters:    string(data),
		ParamsHash:    hex.EncodeToString(sum[:]),
	}, nil
}
