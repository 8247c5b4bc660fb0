package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarStore_StepResultsAccumulate(t *testing.T) {
	vs := NewVarStore()

	vs.StoreStepResult("chain-1", 1, "output A", nil)
	vs.StoreStepResult("chain-1", 2, "output B", nil)

	vars := vs.BuildTemplateVariables("chain-1")
	assert.Equal(t, "output A", vars["step1_result"])
	assert.Equal(t, "output B", vars["step2_result"])
	assert.Equal(t, "output B", vars["previous_step_result"])
	assert.Equal(t, "chain-1", vars["chain_id"])
}

func TestVarStore_OutputMappingNamesVariables(t *testing.T) {
	vs := NewVarStore()

	vs.StoreStepResult("chain-1", 1, "the analysis", map[string]string{
		"result": "analysis_output",
	})

	vars := vs.BuildTemplateVariables("chain-1")
	assert.Equal(t, "the analysis", vars["analysis_output"])
	assert.Equal(t, "the analysis", vars["step1_result"])
}

func TestVarStore_EmptyChainHasOnlyChainID(t *testing.T) {
	vs := NewVarStore()

	vars := vs.BuildTemplateVariables("unknown")
	assert.Equal(t, map[string]any{"chain_id": "unknown"}, vars)
}

func TestVarStore_ChainsAreIsolated(t *testing.T) {
	vs := NewVarStore()

	vs.StoreStepResult("chain-a", 1, "from a", nil)
	vs.StoreStepResult("chain-b", 1, "from b", nil)

	assert.Equal(t, "from a", vs.BuildTemplateVariables("chain-a")["step1_result"])
	assert.Equal(t, "from b", vs.BuildTemplateVariables("chain-b")["step1_result"])
}

func TestVarStore_ClearRemovesAllChainState(t *testing.T) {
	vs := NewVarStore()

	vs.StoreStepResult("chain-1", 1, "output", map[string]string{"result": "named"})
	vs.Clear("chain-1")

	vars := vs.BuildTemplateVariables("chain-1")
	assert.NotContains(t, vars, "step1_result")
	assert.NotContains(t, vars, "previous_step_result")
	assert.NotContains(t, vars, "named")
}
