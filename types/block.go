package types

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// BlockID is the hash identifying a block.
type BlockID tmbytes.HexBytes

func (id BlockID) Equal(other BlockID) bool {
	return bytes.Equal(id, other)
}

func (id BlockID) Bytes() []byte { return id }

func (id BlockID) String() string { return tmbytes.HexBytes(id).String() }

func (id BlockID) MarshalJSON() ([]byte, error) {
	return tmbytes.HexBytes(id).MarshalJSON()
}

func (id *BlockID) UnmarshalJSON(data []byte) error {
	return (*tmbytes.HexBytes)(id).UnmarshalJSON(data)
}

// Block is the unit proposed by the leader of a round. Once constructed by its
// proposer it is treated as an immutable value; certificates and the local
// block cache hold shared pointers to it.
type Block struct {
	mtx    sync.Mutex
	Header `json:"header"`
	Data   `json:"data"`

	// QC justifies entering Round and certifies the parent block.
	// Nil only for the genesis block.
	QC *QuorumCert `json:"qc,omitempty"`

	// TC is attached when the proposer entered Round via a timeout of the
	// previous round, to prove it may propose without a round-(r-1) QC.
	TC *TimeoutCert `json:"tc,omitempty"`
}

type Header struct {
	ChainID string `json:"chain_id"`
	Round   Round  `json:"round"`

	// ParentID is the hash of the certified parent, equal to QC.BlockID for
	// non-genesis blocks.
	ParentID BlockID `json:"parent_id"`

	TxsHash      tmbytes.HexBytes `json:"txs_hash"`
	ProposerAddr Address          `json:"proposer_addr"`
	ProposalTime time.Time        `json:"proposal_time"`

	BlockHash BlockID          `json:"block_hash"`
	Signature tmbytes.HexBytes `json:"signature"`
}

type Data struct {
	Txs  Txs `json:"txs"`
	hash []byte
}

func (d *Data) Hash() tmbytes.HexBytes {
	if d == nil {
		return (Txs{}).Hash()
	}
	if d.hash == nil {
		d.hash = d.Txs.Hash()
	}
	return d.hash
}

// IsGenesis reports whether this is the unique round-zero block.
func (b *Block) IsGenesis() bool {
	return b.Round == RoundZero
}

// ValidateBasic checks for obvious internal inconsistencies. It does not
// verify signatures or certificate quorums.
func (b *Block) ValidateBasic() error {
	if b == nil {
		return errors.New("nil block")
	}
	if len(b.Hash()) == 0 {
		return errors.New("block has no hash")
	}
	if b.IsGenesis() {
		return nil
	}
	if len(b.Header.Signature) == 0 {
		return errors.New("block has no signature")
	}
	if b.QC == nil {
		return errors.New("non-genesis block has no justification qc")
	}
	if err := b.QC.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid justification qc: %w", err)
	}
	if !b.ParentID.Equal(b.QC.BlockID) {
		return errors.New("parent id does not match justification qc")
	}
	if b.QC.Round >= b.Round {
		return errors.New("justification qc round not below block round")
	}
	if b.TC != nil {
		if err := b.TC.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid attached tc: %w", err)
		}
	}
	return nil
}

func (b *Block) fillHeader() {
	if b.TxsHash == nil {
		b.TxsHash = b.Data.Hash()
	}
}

// Hash returns the block id, computing and caching it on first use.
func (b *Block) Hash() BlockID {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.fillHeader()
	return b.Header.Hash()
}

func (b *Block) String() string {
	if b == nil {
		return "nil-Block"
	}
	return fmt.Sprintf("Block{round=%v id=%X txs=%d}", b.Round, b.Hash(), len(b.Txs))
}

func (h *Header) Hash() BlockID {
	if h == nil {
		return nil
	}
	if h.BlockHash == nil {
		h.BlockHash = merkle.HashFromByteSlices([][]byte{
			[]byte(h.ChainID),
			h.Round.Hash(),
			h.ParentID,
			h.TxsHash,
			h.ProposerAddr,
		})
	}
	return h.BlockHash
}
