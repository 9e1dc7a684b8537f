// Copyright 2026 The JetStream Protocol Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cryptoctx

import (
	"crypto/mlkem"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/gravitational/trace"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/jetstreamproto/jsp/lib/wire"
)

const (
	randomSize       = 32
	x25519KeySize    = 32
	hkdfInfo         = "jsp-session"
)

// ClientHello is the first handshake flight. It carries the client's
// classical and post-quantum key shares plus its negotiation
// preferences; it has no connection id yet because one has not been
// assigned.
type ClientHello struct {
	ClientRandom   [randomSize]byte
	X25519Public   [x25519KeySize]byte
	MLKEMEncapKey  []byte // mlkem.EncapsulationKey768.Bytes()
	SuitePref      []SuiteID
	EncodingPref   []wire.Encoding
	ResumeTicket   []byte // opaque, empty if not resuming
}

// ServerHello is the second handshake flight: the server's key share,
// the post-quantum KEM ciphertext encapsulated to the client's key, and
// the negotiated choices.
type ServerHello struct {
	ServerRandom  [randomSize]byte
	X25519Public  [x25519KeySize]byte
	MLKEMCipher   []byte // ciphertext from EncapsulationKey768.Encapsulate()
	Suite         SuiteID
	Encoding      wire.Encoding
	ConnectionID  wire.ConnectionID
}

// ClientKeyShare holds the client's ephemeral private material between
// generating a ClientHello and processing the matching ServerHello.
type ClientKeyShare struct {
	x25519Priv [x25519KeySize]byte
	mlkemDecap *mlkem.DecapsulationKey768
}

// GenerateClientHello creates a fresh ClientHello and the private key
// share needed to process the server's response.
func GenerateClientHello(suitePref []SuiteID, encodingPref []wire.Encoding, resumeTicket []byte) (*ClientHello, *ClientKeyShare, error) {
	var clientRandom [randomSize]byte
	if _, err := rand.Read(clientRandom[:]); err != nil {
		return nil, nil, trace.Wrap(err)
	}

	var priv [x25519KeySize]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, nil, trace.Wrap(err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}

	decapKey, err := mlkem.GenerateKey768()
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}

	hello := &ClientHello{
		ClientRandom:  clientRandom,
		MLKEMEncapKey: decapKey.EncapsulationKey().Bytes(),
		SuitePref:     suitePref,
		EncodingPref:  encodingPref,
		ResumeTicket:  resumeTicket,
	}
	copy(hello.X25519Public[:], pub)

	return hello, &ClientKeyShare{x25519Priv: priv, mlkemDecap: decapKey}, nil
}

// ServerKeyShare holds the server's ephemeral private material used
// while generating the ServerHello and deriving the session keys.
type ServerKeyShare struct {
	x25519Priv    [x25519KeySize]byte
	sharedMLKEM   []byte
}

// ProcessClientHello validates hello's key material, generates the
// server's own ephemeral key share, encapsulates a shared secret to the
// client's ML-KEM public key, and returns the ServerHello to send plus
// the derived session Keys.
func ProcessClientHello(hello *ClientHello, suiteSupported []SuiteID, encodingSupported []wire.Encoding, connID wire.ConnectionID) (*ServerHello, *Keys, error) {
	suite, err := NegotiateSuite(hello.SuitePref, suiteSupported)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	encoding, err := wire.NegotiateEncoding(hello.EncodingPref, encodingSupported)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}

	var serverRandom [randomSize]byte
	if _, err := rand.Read(serverRandom[:]); err != nil {
		return nil, nil, trace.Wrap(err)
	}

	var priv [x25519KeySize]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, nil, trace.Wrap(err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}

	classicalShared, err := curve25519.X25519(priv[:], hello.X25519Public[:])
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}

	encapKey, err := mlkem.NewEncapsulationKey768(hello.MLKEMEncapKey)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	pqShared, pqCiphertext := encapKey.Encapsulate()

	serverHello := &ServerHello{
		ServerRandom: serverRandom,
		MLKEMCipher:  pqCiphertext,
		Suite:        suite,
		Encoding:     encoding,
		ConnectionID: connID,
	}
	copy(serverHello.X25519Public[:], pub)

	keys, err := deriveKeys(suite, hello.ClientRandom, serverRandom, classicalShared, pqShared)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	return serverHello, keys, nil
}

// ProcessServerHello completes the client side of the handshake: it
// recomputes the classical shared secret, decapsulates the post-quantum
// shared secret, and derives the session Keys.
func ProcessServerHello(hello *ClientHello, share *ClientKeyShare, serverHello *ServerHello) (*Keys, error) {
	classicalShared, err := curve25519.X25519(share.x25519Priv[:], serverHello.X25519Public[:])
	if err != nil {
		return nil, trace.Wrap(err)
	}
	pqShared, err := share.mlkemDecap.Decapsulate(serverHello.MLKEMCipher)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return deriveKeys(serverHello.Suite, hello.ClientRandom, serverHello.ServerRandom, classicalShared, pqShared)
}

// NonceSaltSize matches the 12-byte nonce both supported AEAD suites use.
const NonceSaltSize = 12

// ResumptionSecretSize is the length of the secret derived alongside
// the session's AEAD keys for sealing a future 0-RTT ticket.
const ResumptionSecretSize = 32

// Keys holds the per-direction AEAD contexts and nonce salts derived
// for a session.
type Keys struct {
	Suite            SuiteID
	ClientAEAD       AEAD
	ServerAEAD       AEAD
	ClientNonceSalt  [NonceSaltSize]byte
	ServerNonceSalt  [NonceSaltSize]byte
	ResumptionSecret [ResumptionSecretSize]byte
}

// deriveKeys implements the HKDF schedule: salt is
// client_random‖server_random, info is the fixed string "jsp-session",
// and the classical and post-quantum shared secrets are concatenated
// before extraction so the hybrid construction is secure as long as
// either component remains unbroken.
func deriveKeys(suite SuiteID, clientRandom, serverRandom [randomSize]byte, classicalShared, pqShared []byte) (*Keys, error) {
	salt := make([]byte, 0, 2*randomSize)
	salt = append(salt, clientRandom[:]...)
	salt = append(salt, serverRandom[:]...)

	ikm := make([]byte, 0, len(classicalShared)+len(pqShared))
	ikm = append(ikm, classicalShared...)
	ikm = append(ikm, pqShared...)

	reader := hkdf.New(sha256.New, ikm, salt, []byte(hkdfInfo))

	clientKey := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, clientKey); err != nil {
		return nil, trace.Wrap(err)
	}
	serverKey := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, serverKey); err != nil {
		return nil, trace.Wrap(err)
	}

	clientSalt := make([]byte, NonceSaltSize)
	if _, err := io.ReadFull(reader, clientSalt); err != nil {
		return nil, trace.Wrap(err)
	}
	serverSalt := make([]byte, NonceSaltSize)
	if _, err := io.ReadFull(reader, serverSalt); err != nil {
		return nil, trace.Wrap(err)
	}
	resumptionSecret := make([]byte, ResumptionSecretSize)
	if _, err := io.ReadFull(reader, resumptionSecret); err != nil {
		return nil, trace.Wrap(err)
	}

	clientAEAD, err := NewAEAD(suite, clientKey)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	serverAEAD, err := NewAEAD(suite, serverKey)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	keys := &Keys{Suite: suite, ClientAEAD: clientAEAD, ServerAEAD: serverAEAD}
	copy(keys.ClientNonceSalt[:], clientSalt)
	copy(keys.ServerNonceSalt[:], serverSalt)
	copy(keys.ResumptionSecret[:], resumptionSecret)
	return keys, nil
}
