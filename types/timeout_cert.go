package types

import (
	"errors"
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// TimeoutCert attests that a quorum of validators timed out Round without a
// certified block. HighQC is the highest quorum certificate known among the
// timing-out validators; it proves the safety of advancing past Round.
type TimeoutCert struct {
	Round  Round       `json:"round"`
	HighQC *QuorumCert `json:"high_qc"`

	Voters    []Address        `json:"voters"`
	Signature tmbytes.HexBytes `json:"signature"`
}

func NewTimeoutCert(round Round, highQC *QuorumCert, voters []Address) *TimeoutCert {
	return &TimeoutCert{
		Round:     round,
		HighQC:    highQC,
		Voters:    voters,
		Signature: []byte("aggregated signature"),
	}
}

// Greater reports whether tc covers a strictly higher round than other.
// A nil other always compares lower.
func (tc *TimeoutCert) Greater(other *TimeoutCert) bool {
	if other == nil {
		return true
	}
	return tc.Round.Greater(other.Round)
}

func (tc *TimeoutCert) ValidateBasic() error {
	if tc == nil {
		return errors.New("nil timeout cert")
	}
	if !tc.Round.Greater(RoundZero) {
		return errors.New("timeout cert for genesis round")
	}
	if tc.HighQC == nil {
		return errors.New("timeout cert has no high qc")
	}
	if err := tc.HighQC.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid high qc: %w", err)
	}
	if !tc.Round.Greater(tc.HighQC.Round) {
		return errors.New("timeout cert round not above its high qc round")
	}
	if len(tc.Voters) == 0 {
		return errors.New("timeout cert has no voters")
	}
	return nil
}

func (tc *TimeoutCert) String() string {
	if tc == nil {
		return "nil-TC"
	}
	return fmt.Sprintf("TC{round=%v highQC=%v voters=%d}", tc.Round, tc.HighQC.Round, len(tc.Voters))
}
