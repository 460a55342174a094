package swap

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/exchange"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/vm"
)

// Match log layout, under the match-log address:
//
//	count          → number of records (uint64)
//	match/<seq>    → JSON MatchRecord, seq zero-padded
const matchCountSlot = "count"

func matchSlot(seq uint64) string { return fmt.Sprintf("match/%020d", seq) }

func newMatchRecord(ev *exchange.OrdersMatched) *storage.MatchRecord {
	return &storage.MatchRecord{
		FirstHash:   ev.FirstHash.Hex(),
		SecondHash:  ev.SecondHash.Hex(),
		FirstMaker:  ev.FirstMaker.Hex(),
		SecondMaker: ev.SecondMaker.Hex(),
		FirstFill:   ev.NewFirstFill.String(),
		SecondFill:  ev.NewSecondFill.String(),
		Metadata:    ev.Metadata.Hex(),
		Matcher:     ev.Matcher.Hex(),
		Value:       ev.Value.String(),
		Timestamp:   ev.Timestamp,
	}
}

// appendMatch numbers rec and writes it to the match log in env's
// transaction.
func (a *App) appendMatch(env *vm.Env, rec *storage.MatchRecord) error {
	return env.Enter(a.matchLog, nil, func(le *vm.Env) error {
		seq := le.LoadUint64(matchCountSlot) + 1
		rec.Seq = seq
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal match: %w", err)
		}
		if err := le.Store(matchSlot(seq), data); err != nil {
			return err
		}
		return le.StoreUint64(matchCountSlot, seq)
	})
}

// RecentMatches returns up to limit stored matches, newest first.
func (a *App) RecentMatches(limit int) ([]*storage.MatchRecord, error) {
	var out []*storage.MatchRecord
	err := a.m.View(common.Address{}, func(env *vm.Env) error {
		return env.Enter(a.matchLog, nil, func(le *vm.Env) error {
			for seq := le.LoadUint64(matchCountSlot); seq > 0 && len(out) < limit; seq-- {
				var rec storage.MatchRecord
				if err := json.Unmarshal(le.Load(matchSlot(seq)), &rec); err != nil {
					return fmt.Errorf("corrupt match %d: %w", seq, err)
				}
				out = append(out, &rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
