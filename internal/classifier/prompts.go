package classifier

import (
	"fmt"
	"strings"
)

const classifyPrompt = `You are an expert customer support classifier. Analyze the support message and return a JSON object with:
- category: one of "billing", "technical", "account", "feature_request", "complaint", "general"
- urgency: one of "low", "medium", "high", "critical"
- sentiment: one of "positive", "neutral", "negative", "frustrated"
- reasoning: brief explanation of your classification (1-2 sentences)
- key_entities: array of key topics/entities mentioned
%s
Return ONLY valid JSON, no markdown.`

const insightPrompt = `You are an AI that maintains customer insight summaries. Given a new interaction, update or create a brief summary of the customer's profile.

Include:
- Key issues they've had
- Communication preferences observed
- Important details to remember
- Overall relationship status

Keep it concise (2-4 sentences max).

%s

Return ONLY the updated summary text, no JSON or formatting.`

func buildClassifyPrompt(background string) string {
	extra := ""
	if strings.TrimSpace(background) != "" {
		extra = "\nCustomer history context:\n" + background + "\n"
	}
	return fmt.Sprintf(classifyPrompt, extra)
}

func buildResponsePrompt(brand string, p ResponseParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly, professional customer support agent for %s. Generate a helpful response to the customer's message.\n\n", brand)
	b.WriteString(`Guidelines:
- Be empathetic and professional
- Address the customer's concern directly
- Provide actionable next steps when applicable
- Keep responses concise but complete
- Match tone to the situation (more formal for complaints, friendly for general queries)

`)
	fmt.Fprintf(&b, "Classification context:\n- Category: %s\n- Urgency: %s\n- Sentiment: %s\n\n",
		p.Classification.Category, p.Classification.Urgency, p.Classification.Sentiment)
	section(&b, "Customer history", p.CustomerHistory)
	section(&b, "Customer preferences", p.CustomerPreferences)
	section(&b, "Additional context", p.AdditionalContext)
	b.WriteString(`Return JSON with:
- response: the customer-facing response text
- tone: the tone used (e.g., "empathetic", "professional", "friendly")
- suggestedActions: array of internal actions to take (e.g., "escalate to billing team", "send follow-up in 24h")

Return ONLY valid JSON, no markdown.`)
	return b.String()
}

func buildInsightPrompt(previous string) string {
	prev := "This is a new customer."
	if strings.TrimSpace(previous) != "" {
		prev = "Previous summary:\n" + previous
	}
	return fmt.Sprintf(insightPrompt, prev)
}

func section(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", title, body)
}
