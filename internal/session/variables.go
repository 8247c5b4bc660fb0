package session

import (
	"fmt"
	"sync"
)

// VarStore holds rendered step outputs per chain, used to build template
// variables for later steps. Writes for one chain are serialized by the
// store's lock; the caller guarantees at-most-one in-flight run per session.
type VarStore struct {
	mu     sync.RWMutex
	chains map[string]*chainVars
}

type chainVars struct {
	steps       map[int]string
	named       map[string]string
	lastContent string
	hasLast     bool
}

// NewVarStore creates an empty VarStore.
func NewVarStore() *VarStore {
	return &VarStore{chains: make(map[string]*chainVars)}
}

// StoreStepResult records a step's rendered output. Each entry of
// outputMapping saves the content under an additional named variable.
func (v *VarStore) StoreStepResult(chainID string, step int, content string, outputMapping map[string]string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cv, ok := v.chains[chainID]
	if !ok {
		cv = &chainVars{
			steps: make(map[int]string),
			named: make(map[string]string),
		}
		v.chains[chainID] = cv
	}

	cv.steps[step] = content
	cv.lastContent = content
	cv.hasLast = true
	for _, varName := range outputMapping {
		cv.named[varName] = content
	}
}

// BuildTemplateVariables produces step{N}_result for every stored step,
// previous_step_result for the most recently stored one, chain_id, and one
// variable per declared named output. Only steps stored in the current chain
// lifetime appear.
func (v *VarStore) BuildTemplateVariables(chainID string) map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()

	vars := map[string]any{
		"chain_id": chainID,
	}

	cv, ok := v.chains[chainID]
	if !ok {
		return vars
	}

	for step, content := range cv.steps {
		vars[fmt.Sprintf("step%d_result", step)] = content
	}
	if cv.hasLast {
		vars["previous_step_result"] = cv.lastContent
	}
	for name, content := range cv.named {
		vars[name] = content
	}
	return vars
}

// Clear removes every variable for chainID. Must be called when a chain
// session is abandoned.
func (v *VarStore) Clear(chainID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.chains, chainID)
}
