package classifier

const systemPrompt = `You classify customer support tickets. Read the ticket description and choose exactly one category and exactly one priority.

Categories (choose one):
- billing: charges, invoices, refunds, subscription or plan changes, pricing
- technical: bugs, error messages, crashes, slowness, broken features, API failures
- account: sign-in problems, password resets, profile edits, account removal, access rights
- general: questions, feedback, feature ideas, documentation, everything else

Priorities (choose one):
- low: minor or cosmetic, questions and requests, nothing urgent
- medium: noticeable impact but a workaround exists, not time-critical
- high: serious impact, the user is blocked, should be handled soon
- critical: outage, data loss, security problem, many users affected

Reply with a single JSON object and nothing else, exactly in this shape:
{"suggested_category": "<category>", "suggested_priority": "<priority>"}

No prose, no explanations, no markdown fences.`

func userPrompt(description string) string {
	return "Ticket description:\n" + description
}
