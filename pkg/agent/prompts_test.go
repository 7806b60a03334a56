// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/sentinel/pkg/tools"
)

func TestToolCatalogRendering(t *testing.T) {
	catalog := ToolCatalog([]tools.Tool{
		{Name: "check_seller", Description: "fetch seller profile"},
		{Name: "ip_lookup", Description: "geolocate an address"},
	})
	assert.Equal(t, "- check_seller: fetch seller profile\n- ip_lookup: geolocate an address", catalog)
	assert.Equal(t, "", ToolCatalog(nil))
}

func TestBuildPromptsCarryInputs(t *testing.T) {
	think := BuildThinkPrompt("a risk analyst", "## system\nrules", map[string]interface{}{"sellerId": "S-1"})
	assert.Contains(t, think.System, "a risk analyst")
	assert.Contains(t, think.User, `"sellerId":"S-1"`)
	assert.Contains(t, think.User, "## system")

	plan := BuildPlanPrompt("a risk analyst", "velocity spike on new seller", "- analyze: review")
	assert.Contains(t, plan.User, "velocity spike on new seller")
	assert.Contains(t, plan.User, "- analyze: review")
	assert.Contains(t, plan.User, "At most 10 actions")

	replan := BuildRePlanPrompt("a risk analyst", "verify identity", []string{"kyc_check", "doc_scan"}, "- analyze: review")
	assert.Contains(t, replan.User, "verify identity")
	assert.Contains(t, replan.User, "- kyc_check")
	assert.Contains(t, replan.User, "- doc_scan")

	obs := BuildObservePrompt("a risk analyst", map[string]interface{}{"sellerId": "S-1"}, []ExecutedAction{
		{Action: Action{Type: "kyc_check"}, Result: &tools.Result{Success: false, Error: "offline"}},
	})
	assert.Contains(t, obs.User, "kyc_check: success=false error=offline")

	reflect := BuildReflectPrompt("a risk analyst", &Observation{
		Recommendation: "BLOCK", RiskScore: 82, Confidence: 0.8, Summary: "bad", Reasoning: "velocity",
	})
	assert.Contains(t, reflect.User, "recommendation=BLOCK")
	assert.Contains(t, reflect.System, "skeptical")
}

func TestSchemasDeclareRequiredFields(t *testing.T) {
	for name, schema := range map[string]map[string]interface{}{
		"think":   ThinkSchema(),
		"plan":    PlanSchema(),
		"observe": ObserveSchema(),
		"reflect": ReflectSchema(),
		"query":   SelfQuerySchema(),
	} {
		assert.Equal(t, "object", schema["type"], name)
		assert.NotEmpty(t, schema["required"], name)
	}
}

func TestParseCitations(t *testing.T) {
	text := "Seller shipped 400 orders in one hour [source: order_history#2]. " +
		"The card BIN is high-risk [source: bin_check#0]."
	citations := ParseCitations(text)
	require.Len(t, citations, 2)
	assert.Equal(t, "order_history", citations[0].ToolName)
	assert.Equal(t, 2, citations[0].Index)
	assert.Contains(t, citations[0].Claim, "400 orders in one hour")
	assert.Equal(t, "bin_check", citations[1].ToolName)
	assert.Contains(t, citations[1].Claim, "card BIN is high-risk")
}

func TestCitationBoundaries(t *testing.T) {
	assert.Empty(t, ParseCitations(""))
	assert.Empty(t, ParseCitations("no markers here"))
	assert.Equal(t, "", StripCitations(""))
}

func TestStripCitations(t *testing.T) {
	text := "High velocity [source: order_history#1] confirmed."
	assert.Equal(t, "High velocity confirmed.", StripCitations(text))
}

func TestAnalyzeToolAlwaysSucceeds(t *testing.T) {
	tool := analyzeTool()
	res, err := tool.Handler(context.Background(), map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
