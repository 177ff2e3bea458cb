package prompt

// Variant selects one of the built-in templates.
type Variant string

const (
	// VariantSingle only asks whether the message deserves attention.
	VariantSingle Variant = "single"
	// VariantDual also detects mail-forwarding confirmation requests.
	VariantDual Variant = "dual"
)

const singleTemplate = `You triage email for a busy person. Decide whether the message below deserves their immediate attention.

Reply with a single JSON object and nothing else:
{"worth_reading": true or false, "reason": "one short sentence"}

From: {from}
Subject: {subject}

{body}
`

const dualTemplate = `You triage email for a busy person. Do exactly one of the following.

1. If the message is an automated request to confirm mail forwarding to another
address, reply with:
{"gmail_forward_confirm_link": "<the confirmation URL>", "email": "<the address that requested forwarding>"}

2. Otherwise decide whether the message deserves immediate attention and reply with:
{"worth_reading": true or false, "reason": "one short sentence"}

Reply with a single JSON object and nothing else.

From: {from}
Subject: {subject}

{body}
`

var builtins = map[Variant]string{
	VariantSingle: singleTemplate,
	VariantDual:   dualTemplate,
}
