package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/aptos-labs/aptos-core-sub050/types"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{
		CommittedRound: -1,
	}
}

// consensusMetric mirrors the round state for the metrics endpoint.
type consensusMetric struct {
	mtx sync.RWMutex

	CurRound       int64     `json:"cur_round"`
	RoundStartTime time.Time `json:"round_start_time"`
	HighQCRound    int64     `json:"high_qc_round"`
	CommittedRound int64     `json:"committed_round"`

	IsProposer      bool   `json:"is_proposer"`
	ProposerAddress string `json:"proposer_address"`

	Proposals int64 `json:"proposals"`
	Votes     int64 `json:"votes"`
	Timeouts  int64 `json:"timeouts"`
	Commits   int64 `json:"commits"`
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *consensusMetric) MarkRound(round types.Round, start time.Time, isProposer bool, proposer string) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.CurRound = round.Int64()
	cm.RoundStartTime = start
	cm.IsProposer = isProposer
	cm.ProposerAddress = proposer
}

func (cm *consensusMetric) MarkHighQC(round types.Round) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.HighQCRound = round.Int64()
}

func (cm *consensusMetric) MarkCommitted(round types.Round, blocks int64) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.CommittedRound = round.Int64()
	cm.Commits += blocks
}

func (cm *consensusMetric) MarkProposal() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Proposals++
}

func (cm *consensusMetric) MarkVote() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Votes++
}

func (cm *consensusMetric) MarkTimeout() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Timeouts++
}
