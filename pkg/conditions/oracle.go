package conditions

import (
	"context"
	"sync"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

// MemoryOracle is an in-process Oracle. Hosts publish fact sets per
// validator; evaluation only ever reads them.
type MemoryOracle struct {
	mu    sync.RWMutex
	facts map[contracts.Party]map[string]interface{}
}

// NewMemoryOracle creates an oracle with no published facts.
func NewMemoryOracle() *MemoryOracle {
	return &MemoryOracle{facts: make(map[contracts.Party]map[string]interface{})}
}

// Publish replaces the fact set for validator.
func (o *MemoryOracle) Publish(validator contracts.Party, facts map[string]interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	copied := make(map[string]interface{}, len(facts))
	for k, v := range facts {
		copied[k] = v
	}
	o.facts[validator] = copied
}

func (o *MemoryOracle) Facts(_ context.Context, validator contracts.Party) (map[string]interface{}, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	facts, ok := o.facts[validator]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]interface{}, len(facts))
	for k, v := range facts {
		out[k] = v
	}
	return out, true, nil
}
