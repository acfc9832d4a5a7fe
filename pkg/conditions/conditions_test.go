package conditions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tidemark-Labs/covenant/pkg/clock"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

func newTestEvaluator(t *testing.T, clk clock.Clock, oracle Oracle, approvals ApprovalRegistry) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(clk, oracle, approvals)
	require.NoError(t, err)
	return e
}

func timeCond(notBefore uint64) contracts.Condition {
	params, _ := json.Marshal(map[string]uint64{"not_before": notBefore})
	return contracts.Condition{Kind: contracts.ConditionTimeBased, Params: params, Validator: "oracle-1"}
}

func oracleCond(expr string, validator contracts.Party) contracts.Condition {
	params, _ := json.Marshal(map[string]string{"expression": expr})
	return contracts.Condition{Kind: contracts.ConditionOracleBased, Params: params, Validator: validator}
}

func approvalCond(validator contracts.Party) contracts.Condition {
	return contracts.Condition{Kind: contracts.ConditionManualApproval, Params: json.RawMessage(`{}`), Validator: validator}
}

func TestEmptyConditionsVacuouslyTrue(t *testing.T) {
	e := newTestEvaluator(t, clock.NewManual(100), nil, nil)

	met, err := e.EvaluateAll(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestTimeBasedCondition(t *testing.T) {
	clk := clock.NewManual(100)
	e := newTestEvaluator(t, clk, nil, nil)
	ctx := context.Background()

	met, err := e.EvaluateAll(ctx, 1, []contracts.Condition{timeCond(200)})
	require.NoError(t, err)
	assert.False(t, met, "not_before in the future must be unmet")

	clk.Set(200)
	met, err = e.EvaluateAll(ctx, 1, []contracts.Condition{timeCond(200)})
	require.NoError(t, err)
	assert.True(t, met, "not_before boundary counts as met")
}

func TestOracleCondition(t *testing.T) {
	oracle := NewMemoryOracle()
	e := newTestEvaluator(t, clock.NewManual(0), oracle, nil)
	ctx := context.Background()
	cond := oracleCond(`facts.shipment_status == "delivered"`, "carrier")

	met, err := e.EvaluateAll(ctx, 1, []contracts.Condition{cond})
	require.NoError(t, err)
	assert.False(t, met, "no published facts means unmet")

	oracle.Publish("carrier", map[string]interface{}{"shipment_status": "in_transit"})
	met, err = e.EvaluateAll(ctx, 1, []contracts.Condition{cond})
	require.NoError(t, err)
	assert.False(t, met)

	oracle.Publish("carrier", map[string]interface{}{"shipment_status": "delivered"})
	met, err = e.EvaluateAll(ctx, 1, []contracts.Condition{cond})
	require.NoError(t, err)
	assert.True(t, met)
}

func TestManualApprovalCondition(t *testing.T) {
	approvals := NewMemoryApprovals()
	e := newTestEvaluator(t, clock.NewManual(0), nil, approvals)
	ctx := context.Background()
	cond := approvalCond("arbiter")

	met, err := e.EvaluateAll(ctx, 7, []contracts.Condition{cond})
	require.NoError(t, err)
	assert.False(t, met)

	approvals.Approve("arbiter", 7)
	met, err = e.EvaluateAll(ctx, 7, []contracts.Condition{cond})
	require.NoError(t, err)
	assert.True(t, met)

	// Approval is per-escrow.
	met, err = e.EvaluateAll(ctx, 8, []contracts.Condition{cond})
	require.NoError(t, err)
	assert.False(t, met)
}

// countingOracle records how many times it is consulted, to observe
// short-circuiting.
type countingOracle struct {
	calls int
}

func (c *countingOracle) Facts(context.Context, contracts.Party) (map[string]interface{}, bool, error) {
	c.calls++
	return map[string]interface{}{"ok": true}, true, nil
}

func TestShortCircuitOnFirstUnmet(t *testing.T) {
	counter := &countingOracle{}
	e := newTestEvaluator(t, clock.NewManual(50), counter, nil)

	conds := []contracts.Condition{
		timeCond(100), // unmet at t=50
		oracleCond("facts.ok == true", "oracle-1"),
	}
	met, err := e.EvaluateAll(context.Background(), 1, conds)
	require.NoError(t, err)
	assert.False(t, met)
	assert.Zero(t, counter.calls, "conditions after the first unmet one must not be evaluated")
}

func TestAndComposition(t *testing.T) {
	approvals := NewMemoryApprovals()
	clk := clock.NewManual(500)
	e := newTestEvaluator(t, clk, nil, approvals)
	ctx := context.Background()

	conds := []contracts.Condition{timeCond(400), approvalCond("arbiter")}
	met, err := e.EvaluateAll(ctx, 3, conds)
	require.NoError(t, err)
	assert.False(t, met, "all conditions must hold")

	approvals.Approve("arbiter", 3)
	met, err = e.EvaluateAll(ctx, 3, conds)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestValidateParams(t *testing.T) {
	e := newTestEvaluator(t, clock.NewManual(0), nil, nil)

	require.NoError(t, e.ValidateParams(timeCond(10)))
	require.NoError(t, e.ValidateParams(oracleCond("facts.x > 1", "o")))
	require.NoError(t, e.ValidateParams(approvalCond("a")))

	bad := contracts.Condition{Kind: contracts.ConditionTimeBased, Params: json.RawMessage(`{"wrong": 1}`)}
	assert.Error(t, e.ValidateParams(bad))

	notJSON := contracts.Condition{Kind: contracts.ConditionTimeBased, Params: json.RawMessage(`nope`)}
	assert.Error(t, e.ValidateParams(notJSON))

	badExpr := oracleCond("facts.x ==", "o")
	assert.Error(t, e.ValidateParams(badExpr), "malformed CEL must fail at creation time")

	unknown := contracts.Condition{Kind: "WEATHER", Params: json.RawMessage(`{}`)}
	assert.Error(t, e.ValidateParams(unknown))
}

func TestValidateParamsAbsentBlob(t *testing.T) {
	e := newTestEvaluator(t, clock.NewManual(0), nil, nil)

	// A condition posted without a params blob is the same as `{}`.
	noParams := contracts.Condition{Kind: contracts.ConditionManualApproval, Validator: "arbiter"}
	require.NoError(t, e.ValidateParams(noParams))

	empty := contracts.Condition{Kind: contracts.ConditionManualApproval, Params: json.RawMessage(``), Validator: "arbiter"}
	require.NoError(t, e.ValidateParams(empty))

	// Kinds with required fields still reject an absent blob.
	bare := contracts.Condition{Kind: contracts.ConditionTimeBased, Validator: "oracle-1"}
	assert.Error(t, e.ValidateParams(bare), "not_before is required")
}

func TestExpressionEngineNonBoolean(t *testing.T) {
	eng, err := NewExpressionEngine()
	require.NoError(t, err)

	_, err = eng.Evaluate(`facts.count`, map[string]interface{}{"count": 3})
	assert.Error(t, err)
}
