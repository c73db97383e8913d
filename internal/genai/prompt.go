package genai

import (
	"fmt"
	"strings"
	"time"
)

const systemPrompt = `You are a sales assistant reviewing a WhatsApp conversation with a lead who stopped replying.
Decide whether a follow-up message should be sent now and, if so, write it.

Rules:
- Do not recommend a follow-up if the lead expressed clear disinterest or asked not to be contacted.
- If the lead raised objections that were not resolved, the message must address them.
- The message must be personalized to the conversation, short and friendly. Never generic.
- Write the message in Brazilian Portuguese.

Answer with a single JSON object with exactly these fields:
{
  "shouldSendFollowup": boolean,
  "contextualMessage": string or null,
  "reasoning": string,
  "sentiment": "positive" | "neutral" | "negative",
  "urgency": "low" | "medium" | "high"
}`

func buildUserPrompt(in AnalysisInput) string {
	var b strings.Builder

	name := "unknown"
	if in.LeadName != nil && strings.TrimSpace(*in.LeadName) != "" {
		name = strings.TrimSpace(*in.LeadName)
	}
	fmt.Fprintf(&b, "Lead name: %s\n", name)

	stage := in.FunnelStage
	if stage == "" {
		stage = "unknown"
	}
	fmt.Fprintf(&b, "Funnel stage: %s\n", stage)

	if !in.LastInteractionAt.IsZero() {
		fmt.Fprintf(&b, "Last interaction: %s\n", in.LastInteractionAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Follow-up attempt: %d of 6\n\n", in.AttemptNumber)

	turns := in.RecentTurns
	if len(turns) > RecentTurnLimit {
		turns = turns[len(turns)-RecentTurnLimit:]
	}
	b.WriteString("Recent conversation:\n")
	if len(turns) == 0 {
		b.WriteString("(no messages)\n")
	}
	for _, t := range turns {
		role := t.Role
		if role == "" {
			role = "unknown"
		}
		fmt.Fprintf(&b, "[%s] %s\n", role, strings.TrimSpace(t.Content))
	}
	return b.String()
}
