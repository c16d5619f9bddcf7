package trading

import (
	"fmt"
	"strconv"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// Client-visible identifiers do not align 1:1 with the venue's
// (market id, slot index) addressing: callers hand back whichever id a
// previous response happened to surface — a trade id, a market id, or the
// nested pair id. Resolve matches the candidate against all three
// representations of each live position and recovers the canonical pair.
//
// Tie-break rule: an exact trade-id match always beats a market-id or
// nested-pair-id match, so a candidate that is simultaneously some
// position's trade id and another's market id resolves to the former.
// Within the market-id pass, a caller-supplied slot hint selects among
// multiple slots in the same market; otherwise the indexer's list order
// decides.

// Resolved is the canonical venue addressing for a matched position.
type Resolved struct {
	MarketID  int
	SlotIndex int
	Position  domain.Position
}

// Resolve matches candidateID against the trader's live position set.
// It returns domain.ErrNotFound when no live position matches; the
// coordinator must not submit then.
func Resolve(candidateID string, candidateIndex *int, live []domain.Position) (Resolved, error) {
	if candidateID == "" {
		return Resolved{}, fmt.Errorf("resolver: %w: empty candidate id", domain.ErrValidation)
	}

	for _, pos := range live {
		if pos.TradeID == candidateID {
			return resolved(pos), nil
		}
	}

	var matches []domain.Position
	for _, pos := range live {
		if pos.MarketID == candidateID || pos.NestedPairID == candidateID {
			matches = append(matches, pos)
		}
	}
	if len(matches) > 0 {
		if candidateIndex != nil {
			for _, pos := range matches {
				if pos.Index == *candidateIndex {
					return resolved(pos), nil
				}
			}
		}
		return resolved(matches[0]), nil
	}

	return Resolved{}, fmt.Errorf("resolver: position %q: %w", candidateID, domain.ErrNotFound)
}

func resolved(pos domain.Position) Resolved {
	return Resolved{
		MarketID:  marketIDOf(pos),
		SlotIndex: pos.Index,
		Position:  pos,
	}
}

// marketIDOf prefers the nested pair id over the flat market id, matching
// what the venue contract actually addresses.
func marketIDOf(pos domain.Position) int {
	if id, err := strconv.Atoi(pos.NestedPairID); err == nil {
		return id
	}
	if id, err := strconv.Atoi(pos.MarketID); err == nil {
		return id
	}
	return 0
}
