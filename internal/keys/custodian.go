// Package keys implements the Ed25519 key custodian. Nodes either hand over
// a public key and keep their private half, or ask the custodian to generate
// a pair and hold the private half for signing on their behalf.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/herald-mesh/herald/internal/apperr"
)

// KeyPair holds the key material registered for one node. PrivateKey is nil
// when the node kept custody of its private half; such a pair verifies but
// never signs.
type KeyPair struct {
	NodeID       string
	PublicKey    ed25519.PublicKey
	PrivateKey   ed25519.PrivateKey
	RegisteredAt time.Time
}

// CanSign reports whether the custodian holds the private half.
func (k *KeyPair) CanSign() bool { return len(k.PrivateKey) > 0 }

func (k *KeyPair) clone() *KeyPair {
	out := &KeyPair{NodeID: k.NodeID, RegisteredAt: k.RegisteredAt}
	out.PublicKey = append(ed25519.PublicKey(nil), k.PublicKey...)
	out.PrivateKey = append(ed25519.PrivateKey(nil), k.PrivateKey...)
	return out
}

// Custodian is the in-memory registry of node key material. Other packages
// request sign and verify operations; raw private keys never leave this
// package after registration.
type Custodian struct {
	mu    sync.RWMutex
	pairs map[string]*KeyPair
}

func NewCustodian() *Custodian {
	return &Custodian{pairs: make(map[string]*KeyPair)}
}

// Register stores key material for nodeID. A non-empty publicKey must be a
// raw 32-byte Ed25519 public key and is stored verify-only. With an empty
// publicKey the custodian generates a fresh pair and keeps both halves; the
// returned pair is the node's only chance to read the private key.
func (c *Custodian) Register(nodeID string, publicKey []byte) (*KeyPair, error) {
	pair := &KeyPair{NodeID: nodeID, RegisteredAt: time.Now().UTC()}
	if len(publicKey) > 0 {
		if len(publicKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("keys: public key is %d bytes, want %d: %w",
				len(publicKey), ed25519.PublicKeySize, apperr.ErrInvalidKeyMaterial)
		}
		pair.PublicKey = append(ed25519.PublicKey(nil), publicKey...)
	} else {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("keys: generate: %w", err)
		}
		pair.PublicKey, pair.PrivateKey = pub, priv
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pairs[nodeID]; ok {
		return nil, fmt.Errorf("keys: %s: %w", nodeID, apperr.ErrAlreadyExists)
	}
	c.pairs[nodeID] = pair
	return pair.clone(), nil
}

// Sign signs payload with nodeID's private key.
func (c *Custodian) Sign(nodeID string, payload []byte) ([]byte, error) {
	c.mu.RLock()
	pair, ok := c.pairs[nodeID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("keys: sign for %s: %w", nodeID, apperr.ErrNodeUnknown)
	}
	if !pair.CanSign() {
		return nil, fmt.Errorf("keys: sign for %s: %w", nodeID, apperr.ErrNoSigningKey)
	}
	return ed25519.Sign(pair.PrivateKey, payload), nil
}

// Verify checks signature over payload against nodeID's public key. A bad or
// malformed signature is a false result, not an error; the only error is an
// unregistered node.
func (c *Custodian) Verify(nodeID string, payload, signature []byte) (bool, error) {
	c.mu.RLock()
	pair, ok := c.pairs[nodeID]
	c.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("keys: verify for %s: %w", nodeID, apperr.ErrNodeUnknown)
	}
	return ed25519.Verify(pair.PublicKey, payload, signature), nil
}

// HasSigningKey reports whether the custodian can sign for nodeID.
func (c *Custodian) HasSigningKey(nodeID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pair, ok := c.pairs[nodeID]
	return ok && pair.CanSign()
}

// PublicKey returns nodeID's raw public key.
func (c *Custodian) PublicKey(nodeID string) (ed25519.PublicKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pair, ok := c.pairs[nodeID]
	if !ok {
		return nil, fmt.Errorf("keys: %s: %w", nodeID, apperr.ErrNodeUnknown)
	}
	return append(ed25519.PublicKey(nil), pair.PublicKey...), nil
}
