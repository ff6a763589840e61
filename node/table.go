package node

import (
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/patcher"
)

// PatchTable returns the compatibility table of built-in kinds. Pairs
// without a rule are declared incompatible, so the table is symmetric.
func PatchTable() *patcher.Table {
	var (
		audio   = []string{KindOscillator, KindNoise, KindSampler, KindMixer, KindFilter}
		control = []string{KindLFO, KindControlMixer}
		kinds   = append(append([]string{KindOutput}, audio...), control...)

		anyAudio = patcher.Rule{Socket: graph.Audio, In: patcher.AnyInput}
	)
	t := patcher.NewTable()
	for _, producer := range audio {
		t.Set(producer, KindMixer, anyAudio).
			Set(producer, KindFilter, patcher.Rule{Socket: graph.Audio, In: InInput}).
			Set(producer, KindOutput, patcher.Rule{Socket: graph.Audio})
	}
	for _, producer := range control {
		t.Set(producer, KindOscillator, patcher.Rule{Socket: graph.Control, In: InFrequency}).
			Set(producer, KindNoise, patcher.Rule{Socket: graph.Control}).
			Set(producer, KindFilter, patcher.Rule{Socket: graph.Control, In: InCutoff}).
			Set(producer, KindSampler, patcher.Rule{Socket: graph.Control, In: InRate}).
			Set(producer, KindControlMixer, patcher.Rule{Socket: graph.Control, In: patcher.AnyInput})
	}
	for _, producer := range kinds {
		for _, consumer := range kinds {
			if _, ok := t.Lookup(producer, consumer); !ok {
				t.Forbid(producer, consumer)
			}
		}
	}
	return t
}
