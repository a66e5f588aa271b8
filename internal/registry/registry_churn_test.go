package registry_test

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// Drives open/give churn across several owners against a plain-slice model:
// after every step the arena lists must equal the model exactly, stay
// insertion-ordered, and agree with Count and Owner.

func TestOwnershipListChurn(t *testing.T) {
	f := newFixture(t, "BNB")

	owners := []common.Address{
		alice,
		bob,
		common.HexToAddress("0x000000000000000000000000000000000000caa1"),
	}
	model := make(map[common.Address][]uint64, len(owners))

	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 400; step++ {
		src := owners[rng.Intn(len(owners))]

		if rng.Intn(3) == 0 || len(model[src]) == 0 {
			id := f.open(t, "BNB", src)
			model[src] = append(model[src], id)
		} else {
			dst := owners[rng.Intn(len(owners))]
			if dst == src {
				continue
			}
			pick := rng.Intn(len(model[src]))
			id := model[src][pick]

			require.NoError(t, f.manager.Give(src, id, dst), "step %d", step)
			model[src] = append(model[src][:pick], model[src][pick+1:]...)
			model[dst] = append(model[dst], id)
		}

		for _, o := range owners {
			got := f.manager.List(o)
			require.Len(t, got, len(model[o]), "step %d owner %s", step, o.Hex())
			require.Equal(t, append([]uint64{}, model[o]...), append([]uint64{}, got...), "step %d owner %s", step, o.Hex())
			require.Equal(t, uint64(len(model[o])), f.manager.Count(o))
		}
	}

	// Every issued id resolves to the owner whose list holds it.
	for o, ids := range model {
		for _, id := range ids {
			holder, err := f.manager.Owner(id)
			require.NoError(t, err)
			require.Equal(t, o, holder, "id %d", id)
		}
	}
}
