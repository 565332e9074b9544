// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keys

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"github.com/multiformats/go-multibase"

	"github.com/oap-foundation/oaep-go/types"
)

// ed25519MulticodecPrefix is the multicodec varint prefix for Ed25519 public keys (0xed01).
var ed25519MulticodecPrefix = []byte{0xed, 0x01}

var base58Encoder = multibase.MustNewEncoder(multibase.Base58BTC)

// EncodePublicKey returns the multibase base58btc token for an Ed25519
// public key, e.g. "z6Mk...". The key is tagged with the 0xed01 multicodec
// prefix before encoding.
func EncodePublicKey(publicKey ed25519.PublicKey) string {
	tagged := make([]byte, 0, len(ed25519MulticodecPrefix)+len(publicKey))
	tagged = append(tagged, ed25519MulticodecPrefix...)
	tagged = append(tagged, publicKey...)
	return base58Encoder.Encode(tagged)
}

// DecodePublicKey reverses EncodePublicKey. Every failure is a *types.ErrFormat.
func DecodePublicKey(token string) (ed25519.PublicKey, error) {
	if token == "" {
		return nil, &types.ErrFormat{Input: token, Reason: "missing multibase prefix"}
	}
	marker := multibase.Encoding(token[0])
	if marker != multibase.Base58BTC {
		if name, known := multibase.EncodingToStr[marker]; known {
			return nil, &types.ErrFormat{Input: token, Reason: fmt.Sprintf("unsupported multibase encoding %s", name)}
		}
		return nil, &types.ErrFormat{Input: token, Reason: fmt.Sprintf("unknown multibase prefix %q", token[0])}
	}

	decoded, err := base58.Decode(token[1:])
	if err != nil {
		return nil, &types.ErrFormat{Input: token, Reason: fmt.Sprintf("base58 decode: %v", err)}
	}
	if !bytes.HasPrefix(decoded, ed25519MulticodecPrefix) {
		return nil, &types.ErrFormat{Input: token, Reason: "unexpected multicodec prefix"}
	}

	rawKey := decoded[len(ed25519MulticodecPrefix):]
	if len(rawKey) != ed25519.PublicKeySize {
		return nil, &types.ErrFormat{Input: token, Reason: fmt.Sprintf("expected %d key bytes, got %d", ed25519.PublicKeySize, len(rawKey))}
	}
	return ed25519.PublicKey(rawKey), nil
}
