// Package store provides the durable mirror behind the registry ledger,
// a single bolt file holding CBOR-encoded records. The in-memory ledger
// stays authoritative; the store exists so a restarted process can
// reload where it left off.
package store

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/smartcontractkit/automation-registry/pkg/types"
)

var (
	bucketUpkeeps      = []byte("upkeeps")
	bucketTransmitters = []byte("transmitters")
	bucketSigners      = []byte("signers")
	bucketState        = []byte("state")

	stateKey = []byte("registry")
)

var encMode, _ = cbor.CanonicalEncOptions().EncMode()

type upkeepRecord struct {
	ID                     *big.Int       `cbor:"1,keyasint"`
	Target                 common.Address `cbor:"2,keyasint"`
	ExecuteGas             uint32         `cbor:"3,keyasint"`
	CheckData              []byte         `cbor:"4,keyasint"`
	Balance                *big.Int       `cbor:"5,keyasint"`
	Admin                  common.Address `cbor:"6,keyasint"`
	MaxValidBlocknumber    uint64         `cbor:"7,keyasint"`
	LastPerformBlockNumber uint32         `cbor:"8,keyasint"`
	AmountSpent            *big.Int       `cbor:"9,keyasint"`
	Paused                 bool           `cbor:"10,keyasint"`
	SkipSigVerification    bool           `cbor:"11,keyasint"`
	OffchainConfig         []byte         `cbor:"12,keyasint"`
}

type transmitterRecord struct {
	Active        bool           `cbor:"1,keyasint"`
	Index         uint8          `cbor:"2,keyasint"`
	Balance       *big.Int       `cbor:"3,keyasint"`
	Payee         common.Address `cbor:"4,keyasint"`
	ProposedPayee common.Address `cbor:"5,keyasint"`
}

type signerRecord struct {
	Active bool  `cbor:"1,keyasint"`
	Index  uint8 `cbor:"2,keyasint"`
}

type stateRecord struct {
	Paused                  bool     `cbor:"1,keyasint"`
	OwnerBalance            *big.Int `cbor:"2,keyasint"`
	ExpectedBalance         *big.Int `cbor:"3,keyasint"`
	NumUpkeeps              uint64   `cbor:"4,keyasint"`
	NextID                  uint64   `cbor:"5,keyasint"`
	ConfigCount             uint64   `cbor:"6,keyasint"`
	LatestConfigBlockNumber uint64   `cbor:"7,keyasint"`
	LatestConfigDigest      [32]byte `cbor:"8,keyasint"`
	LatestEpoch             uint32   `cbor:"9,keyasint"`
}

// BoltStore implements the registry's durable store on a single bolt
// file.
type BoltStore struct {
	db *bolt.DB
}

// New opens or creates the bolt file at path.
func New(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open bolt file")
	}

	s := &BoltStore{db: db}
	if err := s.createBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Path() string {
	return s.db.Path()
}

func (s *BoltStore) createBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketUpkeeps, bucketTransmitters, bucketSigners, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return errors.Wrapf(err, "failed to create bucket %s", bucket)
			}
		}
		return nil
	})
}

func (s *BoltStore) write(bucket, key []byte, v any) error {
	bts, err := encMode.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "cbor encode failed")
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, bts)
	}); err != nil {
		return errors.Wrap(err, "bolt write failed")
	}
	return nil
}

func (s *BoltStore) PutUpkeep(up *types.Upkeep) error {
	return s.write(bucketUpkeeps, up.ID.Bytes(), upkeepRecord{
		ID:                     up.ID,
		Target:                 up.Target,
		ExecuteGas:             up.ExecuteGas,
		CheckData:              up.CheckData,
		Balance:                up.Balance,
		Admin:                  up.Admin,
		MaxValidBlocknumber:    up.MaxValidBlocknumber,
		LastPerformBlockNumber: up.LastPerformBlockNumber,
		AmountSpent:            up.AmountSpent,
		Paused:                 up.Paused,
		SkipSigVerification:    up.SkipSigVerification,
		OffchainConfig:         up.OffchainConfig,
	})
}

func (s *BoltStore) DeleteUpkeep(id *big.Int) error {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUpkeeps).Delete(id.Bytes())
	}); err != nil {
		return errors.Wrap(err, "bolt delete failed")
	}
	return nil
}

func (s *BoltStore) PutTransmitter(address common.Address, record *types.Transmitter) error {
	return s.write(bucketTransmitters, address.Bytes(), transmitterRecord{
		Active:        record.Active,
		Index:         record.Index,
		Balance:       record.Balance,
		Payee:         record.Payee,
		ProposedPayee: record.ProposedPayee,
	})
}

func (s *BoltStore) PutSigner(address common.Address, record *types.Signer) error {
	return s.write(bucketSigners, address.Bytes(), signerRecord{
		Active: record.Active,
		Index:  record.Index,
	})
}

func (s *BoltStore) PutState(state *types.State) error {
	return s.write(bucketState, stateKey, stateRecord{
		Paused:                  state.Paused,
		OwnerBalance:            state.OwnerBalance,
		ExpectedBalance:         state.ExpectedBalance,
		NumUpkeeps:              state.NumUpkeeps,
		NextID:                  state.NextID,
		ConfigCount:             state.ConfigCount,
		LatestConfigBlockNumber: state.LatestConfigBlockNumber,
		LatestConfigDigest:      state.LatestConfigDigest,
		LatestEpoch:             state.LatestEpoch,
	})
}

// Upkeeps loads every stored upkeep record.
func (s *BoltStore) Upkeeps() ([]*types.Upkeep, error) {
	var out []*types.Upkeep

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUpkeeps).ForEach(func(_, v []byte) error {
			var record upkeepRecord
			if err := cbor.Unmarshal(v, &record); err != nil {
				return errors.Wrap(err, "cbor decode failed")
			}

			out = append(out, &types.Upkeep{
				ID:                     record.ID,
				Target:                 record.Target,
				ExecuteGas:             record.ExecuteGas,
				CheckData:              record.CheckData,
				Balance:                nonNil(record.Balance),
				Admin:                  record.Admin,
				MaxValidBlocknumber:    record.MaxValidBlocknumber,
				LastPerformBlockNumber: record.LastPerformBlockNumber,
				AmountSpent:            nonNil(record.AmountSpent),
				Paused:                 record.Paused,
				SkipSigVerification:    record.SkipSigVerification,
				OffchainConfig:         record.OffchainConfig,
			})
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "bolt read failed")
	}

	return out, nil
}

// Transmitters loads the stored transmitter directory.
func (s *BoltStore) Transmitters() (map[common.Address]*types.Transmitter, error) {
	out := make(map[common.Address]*types.Transmitter)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTransmitters).ForEach(func(k, v []byte) error {
			var record transmitterRecord
			if err := cbor.Unmarshal(v, &record); err != nil {
				return errors.Wrap(err, "cbor decode failed")
			}

			out[common.BytesToAddress(k)] = &types.Transmitter{
				Active:        record.Active,
				Index:         record.Index,
				Balance:       nonNil(record.Balance),
				Payee:         record.Payee,
				ProposedPayee: record.ProposedPayee,
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "bolt read failed")
	}

	return out, nil
}

// Signers loads the stored signer directory.
func (s *BoltStore) Signers() (map[common.Address]*types.Signer, error) {
	out := make(map[common.Address]*types.Signer)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSigners).ForEach(func(k, v []byte) error {
			var record signerRecord
			if err := cbor.Unmarshal(v, &record); err != nil {
				return errors.Wrap(err, "cbor decode failed")
			}

			out[common.BytesToAddress(k)] = &types.Signer{
				Active: record.Active,
				Index:  record.Index,
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "bolt read failed")
	}

	return out, nil
}

// State loads the registry-wide state record. The second return is
// false when no state has been stored yet.
func (s *BoltStore) State() (*types.State, bool, error) {
	var record stateRecord
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketState).Get(stateKey)
		if v == nil {
			return nil
		}
		found = true
		return cbor.Unmarshal(v, &record)
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "bolt read failed")
	}
	if !found {
		return nil, false, nil
	}

	return &types.State{
		Paused:                  record.Paused,
		OwnerBalance:            nonNil(record.OwnerBalance),
		ExpectedBalance:         nonNil(record.ExpectedBalance),
		NumUpkeeps:              record.NumUpkeeps,
		NextID:                  record.NextID,
		ConfigCount:             record.ConfigCount,
		LatestConfigBlockNumber: record.LatestConfigBlockNumber,
		LatestConfigDigest:      record.LatestConfigDigest,
		LatestEpoch:             record.LatestEpoch,
	}, true, nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
