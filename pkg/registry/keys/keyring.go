// Package keys holds the node-side key material used to sign and
// verify transmission reports. The registry only ever sees the 65 byte
// signatures these keyrings produce.
package keys

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/secp256k1"
	"github.com/smartcontractkit/libocr/offchainreporting2plus/chains/evmutil"
	ocrtypes "github.com/smartcontractkit/libocr/offchainreporting2plus/types"
)

var curve = secp256k1.S256()

// EvmKeyring is the onchain half of a node's identity: a secp256k1 key
// whose derived address doubles as the signer address the registry
// checks quorum against.
type EvmKeyring struct {
	privateKey ecdsa.PrivateKey
}

func NewEvmKeyring(material io.Reader) (*EvmKeyring, error) {
	ecdsaKey, err := ecdsa.GenerateKey(curve, material)
	if err != nil {
		return nil, err
	}
	return &EvmKeyring{privateKey: *ecdsaKey}, nil
}

// Address returns the signer address derived from the public key.
func (k *EvmKeyring) Address() common.Address {
	return crypto.PubkeyToAddress(*(&k.privateKey).Public().(*ecdsa.PublicKey))
}

func reportToSigData(reportCtx ocrtypes.ReportContext, report []byte) []byte {
	rawCtx := evmutil.RawReportContext(reportCtx)

	sigData := crypto.Keccak256(report)
	sigData = append(sigData, rawCtx[0][:]...)
	sigData = append(sigData, rawCtx[1][:]...)
	sigData = append(sigData, rawCtx[2][:]...)

	return crypto.Keccak256(sigData)
}

// Sign produces the 65 byte recoverable signature over a report and its
// context.
func (k *EvmKeyring) Sign(reportCtx ocrtypes.ReportContext, report []byte) ([]byte, error) {
	return crypto.Sign(reportToSigData(reportCtx, report), &k.privateKey)
}

// Verify reports whether signature recovers to the given signer address
// for this report and context.
func (k *EvmKeyring) Verify(signer common.Address, reportCtx ocrtypes.ReportContext, report []byte, signature []byte) bool {
	pubkey, err := crypto.SigToPub(reportToSigData(reportCtx, report), signature)
	if err != nil {
		return false
	}
	return bytes.Equal(signer[:], crypto.PubkeyToAddress(*pubkey).Bytes())
}

func (k *EvmKeyring) MaxSignatureLength() int {
	return 65
}

func (k *EvmKeyring) Marshal() ([]byte, error) {
	return crypto.FromECDSA(&k.privateKey), nil
}

func (k *EvmKeyring) Unmarshal(in []byte) error {
	privateKey, err := crypto.ToECDSA(in)
	if err != nil {
		return err
	}
	k.privateKey = *privateKey
	return nil
}

// OffchainKeyring is the offchain half of a node's identity: an ed25519
// signing key plus a curve25519 scalar for config secret sharing.
//
// All its functions are safe for concurrent use.
type OffchainKeyring struct {
	signingKey    ed25519.PrivateKey
	encryptionKey [curve25519.ScalarSize]byte
}

func NewOffchainKeyring(encryptionMaterial, signingMaterial io.Reader) (*OffchainKeyring, error) {
	_, signingKey, err := ed25519.GenerateKey(signingMaterial)
	if err != nil {
		return nil, err
	}

	encryptionKey := [curve25519.ScalarSize]byte{}
	if _, err := encryptionMaterial.Read(encryptionKey[:]); err != nil {
		return nil, err
	}

	ok := &OffchainKeyring{
		signingKey:    signingKey,
		encryptionKey: encryptionKey,
	}
	if _, err := ok.configEncryptionPublicKey(); err != nil {
		return nil, err
	}
	return ok, nil
}

// OffchainSign signs message using the ed25519 key.
func (ok *OffchainKeyring) OffchainSign(msg []byte) ([]byte, error) {
	return ed25519.Sign(ok.signingKey, msg), nil
}

// ConfigDiffieHellman returns the shared point obtained by multiplying
// someone's public key by this keyring's encryption scalar.
func (ok *OffchainKeyring) ConfigDiffieHellman(point [curve25519.PointSize]byte) ([curve25519.PointSize]byte, error) {
	p, err := curve25519.X25519(ok.encryptionKey[:], point[:])
	if err != nil {
		return [curve25519.PointSize]byte{}, err
	}
	sharedPoint := [curve25519.PointSize]byte{}
	copy(sharedPoint[:], p)
	return sharedPoint, nil
}

// OffchainPublicKey returns the public component of the signing key.
func (ok *OffchainKeyring) OffchainPublicKey() ocrtypes.OffchainPublicKey {
	var offchainPubKey [ed25519.PublicKeySize]byte
	copy(offchainPubKey[:], ok.signingKey.Public().(ed25519.PublicKey))
	return offchainPubKey
}

// ConfigEncryptionPublicKey returns the curve25519 public point.
func (ok *OffchainKeyring) ConfigEncryptionPublicKey() ocrtypes.ConfigEncryptionPublicKey {
	cpk, _ := ok.configEncryptionPublicKey()
	return cpk
}

func (ok *OffchainKeyring) configEncryptionPublicKey() (ocrtypes.ConfigEncryptionPublicKey, error) {
	rv, err := curve25519.X25519(ok.encryptionKey[:], curve25519.Basepoint)
	if err != nil {
		return [curve25519.PointSize]byte{}, err
	}
	var rvFixed [curve25519.PointSize]byte
	copy(rvFixed[:], rv)
	return rvFixed, nil
}
