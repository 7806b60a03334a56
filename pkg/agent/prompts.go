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
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/teradata-labs/sentinel/pkg/tools"
)

// Prompt bundles the system and user halves of one LLM call.
type Prompt struct {
	System string
	User   string
}

// ThinkSchema constrains the think phase output.
func ThinkSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"understanding":      map[string]interface{}{"type": "string"},
			"key_risks":          map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"confidence":         map[string]interface{}{"type": "number"},
			"suggested_approach": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"understanding", "key_risks", "confidence", "suggested_approach"},
	}
}

// PlanSchema constrains the plan phase output.
func PlanSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"goal":      map[string]interface{}{"type": "string"},
			"reasoning": map[string]interface{}{"type": "string"},
			"actions": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"tool":      map[string]interface{}{"type": "string"},
						"params":    map[string]interface{}{"type": "object"},
						"rationale": map[string]interface{}{"type": "string"},
					},
					"required": []interface{}{"tool"},
				},
			},
		},
		"required": []interface{}{"goal", "actions"},
	}
}

// ObserveSchema constrains the observe phase output.
func ObserveSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"summary":        map[string]interface{}{"type": "string"},
			"risk_score":     map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
			"recommendation": map[string]interface{}{"type": "string", "enum": []interface{}{"APPROVE", "REVIEW", "REJECT", "BLOCK", "MONITOR"}},
			"confidence":     map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
			"reasoning":      map[string]interface{}{"type": "string"},
			"key_findings":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []interface{}{"summary", "risk_score", "recommendation", "confidence"},
	}
}

// ReflectSchema constrains the reflect phase output.
func ReflectSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"shouldRevise":         map[string]interface{}{"type": "boolean"},
			"revisedAction":        map[string]interface{}{"type": "string"},
			"revisedConfidence":    map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
			"concerns":             map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"contraArgument":       map[string]interface{}{"type": "string"},
			"reflectionConfidence": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required": []interface{}{"shouldRevise", "reflectionConfidence"},
	}
}

// SelfQuerySchema constrains the retrieval-filter output.
func SelfQuerySchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filters":      map[string]interface{}{"type": "object"},
			"cleanedQuery": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"filters", "cleanedQuery"},
	}
}

// ToolCatalog renders the registered tools for a plan prompt, one
// "- name: description" line per tool.
func ToolCatalog(list []tools.Tool) string {
	var b strings.Builder
	for _, t := range list {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildThinkPrompt asks for an initial risk assessment of the input.
func BuildThinkPrompt(role, assembledContext string, input map[string]interface{}) Prompt {
	return Prompt{
		System: fmt.Sprintf("You are %s in a fraud and risk decisioning platform. Assess the case before acting. Respond with JSON only.", role),
		User: fmt.Sprintf(`%s

Case input:
%s

Produce {"understanding": string, "key_risks": [string], "confidence": number 0..1, "suggested_approach": string}.`,
			assembledContext, compactJSON(input)),
	}
}

// BuildPlanPrompt asks for an action list limited to the tool catalog.
func BuildPlanPrompt(role, understanding, catalog string) Prompt {
	return Prompt{
		System: fmt.Sprintf("You are %s. Plan tool calls to investigate the case. Use only the listed tools. Respond with JSON only.", role),
		User: fmt.Sprintf(`Assessment:
%s

Available tools:
%s

Produce {"goal": string, "reasoning": string, "actions": [{"tool": string, "params": object, "rationale": string}]}. At most 10 actions.`,
			understanding, catalog),
	}
}

// BuildRePlanPrompt asks for a recovery plan after a mostly-failed turn.
func BuildRePlanPrompt(role, goal string, failures []string, catalog string) Prompt {
	return Prompt{
		System: fmt.Sprintf("You are %s. The previous plan mostly failed; propose a different approach. Respond with JSON only.", role),
		User: fmt.Sprintf(`Original goal:
%s

Failed actions:
- %s

Available tools:
%s

Produce {"goal": string, "reasoning": string, "actions": [{"tool": string, "params": object, "rationale": string}]}. Avoid repeating the failed calls.`,
			goal, strings.Join(failures, "\n- "), catalog),
	}
}

// BuildObservePrompt asks for a decision synthesized from the executed
// actions.
func BuildObservePrompt(role string, input map[string]interface{}, actions []ExecutedAction) Prompt {
	var b strings.Builder
	for _, a := range actions {
		fmt.Fprintf(&b, "- %s: success=%t", a.Action.Type, a.Succeeded())
		if a.Result != nil && a.Result.Error != "" {
			fmt.Fprintf(&b, " error=%s", a.Result.Error)
		}
		if a.Result != nil && a.Result.Data != nil {
			fmt.Fprintf(&b, " data=%s", compactJSON(a.Result.Data))
		}
		b.WriteString("\n")
	}
	return Prompt{
		System: fmt.Sprintf("You are %s. Synthesize a decision from the evidence. Respond with JSON only.", role),
		User: fmt.Sprintf(`Case input:
%s

Executed actions:
%s
Produce {"summary": string, "risk_score": number 0..100, "recommendation": "APPROVE"|"REVIEW"|"REJECT"|"BLOCK"|"MONITOR", "confidence": number 0..1, "reasoning": string, "key_findings": [string]}.`,
			compactJSON(input), b.String()),
	}
}

// BuildReflectPrompt asks for a second opinion on an observation.
func BuildReflectPrompt(role string, obs *Observation) Prompt {
	return Prompt{
		System: fmt.Sprintf("You are a skeptical reviewer of %s. Argue against the decision before accepting it. Respond with JSON only.", role),
		User: fmt.Sprintf(`Proposed decision:
recommendation=%s risk_score=%.0f confidence=%.2f
summary: %s
reasoning: %s

Produce {"shouldRevise": bool, "revisedAction": string, "revisedConfidence": number 0..1, "concerns": [string], "contraArgument": string, "reflectionConfidence": number 0..1}.`,
			obs.Recommendation, obs.RiskScore, obs.Confidence, obs.Summary, obs.Reasoning),
	}
}

// Citation ties a claim in generated text back to a tool result.
type Citation struct {
	Claim           string  `json:"claim"`
	ToolName        string  `json:"toolName"`
	Index           int     `json:"index"`
	Confidence      float64 `json:"confidence"`
	EvidenceSnippet string  `json:"evidenceSnippet,omitempty"`
}

// citationRe matches inline markers of the form [source: tool#3].
var (
	citationRe   = regexp.MustCompile(`\[source:\s*([A-Za-z0-9_.-]+)#(\d+)\]`)
	multiSpaceRe = regexp.MustCompile(`[ \t]{2,}`)
)

// ParseCitations extracts inline citation markers. The claim is the
// sentence fragment preceding each marker.
func ParseCitations(text string) []Citation {
	if text == "" {
		return []Citation{}
	}
	matches := citationRe.FindAllStringSubmatchIndex(text, -1)
	citations := make([]Citation, 0, len(matches))
	prevEnd := 0
	for _, m := range matches {
		claim := strings.TrimSpace(text[prevEnd:m[0]])
		if i := strings.LastIndexAny(claim, ".!?"); i >= 0 && i < len(claim)-1 {
			claim = strings.TrimSpace(claim[i+1:])
		}
		index, _ := strconv.Atoi(text[m[4]:m[5]])
		citations = append(citations, Citation{
			Claim:      claim,
			ToolName:   text[m[2]:m[3]],
			Index:      index,
			Confidence: 1,
		})
		prevEnd = m[1]
	}
	return citations
}

// StripCitations removes citation markers, collapsing the space they
// occupied.
func StripCitations(text string) string {
	if text == "" {
		return ""
	}
	stripped := citationRe.ReplaceAllString(text, "")
	stripped = multiSpaceRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(stripped)
}

func compactJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
