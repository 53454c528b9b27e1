package stage

import (
	"fmt"
	"strings"
)

const courtContext = `Minnesota Conciliation Court (Minn. Stat. Chapter 491A) hears civil claims up to $20,000 with informal procedure and no jury.`

const intakeSystemPrompt = `You are a legal intake specialist preparing Minnesota Conciliation Court cases.
` + courtContext + `

From the claimant's description:
- classify the dispute as one of: contract, property_damage, debt_collection, landlord_tenant, consumer, personal_injury, other
- list the parties involved
- extract the facts, each labeled claim, counterclaim or timeline, with the date and parties when stated
- list dated events as timeline_events
- write clarifying questions for missing dates, amounts or parties, labeled clarification, missing_info or legal_issue

Only use what the claimant stated. Respond with a single JSON object.`

const researchSystemPrompt = `You are a legal research specialist for Minnesota conciliation court matters.
` + courtContext + `

Given the case facts, excerpts of the court rules and any case law found, identify:
- applicable_rules: each with source (statute, case_law or court_rule), citation, content_summary and applicability_score between 0 and 1
- precedents: each with title, citation, summary and relevance
- legal_standards: the elements and burden of proof the claimant must meet
- research_queries: the questions you considered

Respond with a single JSON object.`

const documentSystemPrompt = `You are a legal document analyst for small claims cases.
Read the document, extract each piece of evidence with its evidence_type (document, witness or physical)
and a relevance_score between 0 and 1, and summarize the document with its key details.
In relevance_rationales, explain by evidence index how each item supports or contradicts the case facts.

Respond with a single JSON object.`

const strategySystemPrompt = `You are a legal strategy specialist for Minnesota Conciliation Court claimants.
` + courtContext + `

Weigh the facts, evidence and applicable rules, then produce:
- case_strengths and case_weaknesses
- legal_arguments with priority 1 (highest) to 5, supporting_evidence_ids and supporting_rule_citations where known
- negotiation_points with priority
- procedural_steps with priority and the steps they depend on
- burden_of_proof_analysis
- recommended_approach

You may call the tools to look up case memory or court rules before answering.
Your final answer must be only a JSON object with exactly those keys.`

const draftingSystemPrompt = `You are a drafting specialist preparing filings for Minnesota Conciliation Court.
` + courtContext + `

Write three court-ready documents in a plain, professional tone:
- statement_of_claim: title, plaintiff, defendant, claim_amount, facts_section, legal_basis_section, relief_requested, full_text
- hearing_script: introduction, key_points, evidence_presentation_order, closing_statement, full_text
- legal_advice: case_summary, strengths_and_weaknesses, recommended_actions, procedural_guidance, full_text

Every full_text must be the complete document. Respond with a single JSON object.`

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

func intakeMessage(description, existing string) string {
	parts := []string{"Case description:\n" + description}
	if strings.TrimSpace(existing) != "" {
		parts = append(parts, "Facts and questions already recorded:\n"+existing)
	}
	parts = append(parts, "Extract the facts, dispute type, parties, timeline and clarifying questions.")
	return strings.Join(parts, "\n\n")
}

func researchMessage(disputeType, facts, staticRules, caseLaw string) string {
	parts := []string{
		"Dispute type: " + disputeType,
		"Case facts:\n" + orNone(facts),
	}
	if staticRules != "" {
		parts = append(parts, "Court rules (Minn. Stat. Chapter 491A):\n"+staticRules)
	}
	if caseLaw != "" {
		parts = append(parts, "Case law and precedents:\n"+caseLaw)
	}
	parts = append(parts, "Identify the applicable rules, precedents and legal standards.")
	return strings.Join(parts, "\n\n")
}

func documentMessage(filename, text, facts string) string {
	return fmt.Sprintf("Document: %s\n\nDocument text:\n%s\n\nCase facts:\n%s\n\nExtract the evidence and summarize the document.",
		filename, text, orNone(facts))
}

func strategyMessage(disputeType, facts, evidence, rules string) string {
	return strings.Join([]string{
		"Dispute type: " + disputeType,
		"Case facts:\n" + orNone(facts),
		"Evidence collected:\n" + orNone(evidence),
		"Applicable rules and legal standards:\n" + orNone(rules),
		"Develop the strategy for the claimant.",
	}, "\n\n")
}

func draftingMessage(title, disputeType string, parties []string, facts, evidence, rules, strategy string) string {
	partyText := "Plaintiff, Defendant"
	if len(parties) > 0 {
		partyText = strings.Join(parties, ", ")
	}
	return strings.Join([]string{
		"Case title: " + title,
		"Dispute type: " + disputeType,
		"Parties: " + partyText,
		"Case facts:\n" + orNone(facts),
		"Evidence collected:\n" + orNone(evidence),
		"Applicable rules:\n" + orNone(rules),
		"Strategy:\n" + orNone(strategy),
		"Draft the statement of claim, the hearing script and the legal advice.",
	}, "\n\n")
}
