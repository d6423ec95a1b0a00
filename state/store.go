package state

import (
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmdb "github.com/tendermint/tm-db"
)

var stateKey = []byte("stateKey")

// Store persists the committed-frontier state across restarts.
type Store interface {
	Save(State) error
	Load() (State, error)
}

type dbStore struct {
	db tmdb.DB
}

var _ Store = (*dbStore)(nil)

func NewStore(db tmdb.DB) Store {
	return dbStore{db: db}
}

func (store dbStore) Save(state State) error {
	bz, err := tmjson.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	return store.db.SetSync(stateKey, bz)
}

// Load returns the saved state, or an empty State when the store is fresh.
func (store dbStore) Load() (State, error) {
	bz, err := store.db.Get(stateKey)
	if err != nil {
		return State{}, err
	}
	if len(bz) == 0 {
		return State{}, nil
	}
	var state State
	if err := tmjson.Unmarshal(bz, &state); err != nil {
		return State{}, errors.Wrap(err, "corrupt state record")
	}
	return state, nil
}
