// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// canonicalJSON renders v as compact JSON with object keys sorted at every
// depth, HTML characters and non-ASCII UTF-8 left unescaped, and no trailing
// newline. Signatures are computed over exactly these bytes.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("profile: canonicalize: %w", err)
	}

	// Round-tripping through a generic value turns every object into a map,
	// which encoding/json writes with sorted keys.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("profile: canonicalize: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("profile: canonicalize: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
