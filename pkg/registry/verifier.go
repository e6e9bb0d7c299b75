package registry

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/smartcontractkit/libocr/offchainreporting2plus/chains/evmutil"
	ocrtypes "github.com/smartcontractkit/libocr/offchainreporting2plus/types"

	"github.com/smartcontractkit/automation-registry/pkg/types"
)

// SignerDirectory answers whether an address is an active signer under
// the current configuration.
type SignerDirectory interface {
	SignerInfo(address common.Address) (types.Signer, bool)
}

// QuorumVerifier checks that a report carries exactly f+1 signatures
// from distinct, currently active signers over the latest config digest.
// Verification is pure: it either passes or returns a rejection, and it
// never touches the ledger.
type QuorumVerifier struct {
	signers SignerDirectory
}

func NewQuorumVerifier(signers SignerDirectory) *QuorumVerifier {
	return &QuorumVerifier{signers: signers}
}

// SigData returns the digest that signers commit to for a report under
// the given context: keccak256(keccak256(report) || rawReportContext).
func SigData(reportCtx ocrtypes.ReportContext, report []byte) []byte {
	rawCtx := evmutil.RawReportContext(reportCtx)

	sigData := crypto.Keccak256(report)
	sigData = append(sigData, rawCtx[0][:]...)
	sigData = append(sigData, rawCtx[1][:]...)
	sigData = append(sigData, rawCtx[2][:]...)

	return crypto.Keccak256(sigData)
}

// Verify rejects on digest mismatch against the active configuration,
// wrong signature count, any signature that does not recover to an
// active signer, and any signer appearing twice.
func (v *QuorumVerifier) Verify(
	activeDigest ocrtypes.ConfigDigest,
	f uint8,
	reportCtx ocrtypes.ReportContext,
	report []byte,
	signatures [][]byte,
) error {
	if reportCtx.ConfigDigest != activeDigest {
		return ErrConfigDigestMismatch
	}

	if len(signatures) != int(f)+1 {
		return ErrIncorrectNumberOfSignatures
	}

	hash := SigData(reportCtx, report)
	seen := make(map[common.Address]struct{}, len(signatures))

	for _, signature := range signatures {
		if len(signature) != 65 {
			return ErrInvalidSignature
		}

		pubkey, err := crypto.SigToPub(hash, signature)
		if err != nil {
			return ErrInvalidSignature
		}

		signer := crypto.PubkeyToAddress(*pubkey)
		record, ok := v.signers.SignerInfo(signer)
		if !ok || !record.Active {
			return ErrOnlyActiveSigners
		}

		if _, dup := seen[signer]; dup {
			return ErrDuplicateSigners
		}
		seen[signer] = struct{}{}
	}

	return nil
}
