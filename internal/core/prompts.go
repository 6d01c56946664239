package core

import (
	"fmt"
	"strings"
)

const (
	// SystemInstruction is the fixed persona sent with every generation request.
	SystemInstruction = "You are an expert communication coach. Transform messages to be constructive while preserving authentic intent."

	styleExamplesInPrompt = 3

	coachPrinciples = `You are an expert communication coach. Your job is to transform raw, emotional messages into clear, constructive communication while preserving the speaker's authentic concerns and needs.

CORE PRINCIPLES:
- Transform anger, frustration, and harsh language into assertive, clear communication
- Keep the person's genuine feelings and concerns intact
- Remove blame language and personal attacks
- Focus on specific issues rather than character judgments
- Use "I" statements when possible
- Maintain the urgency or importance of the original message

DO NOT make the message overly formal or robotic - keep it human and authentic.`

	professionalGuidelines = `PROFESSIONAL MODE GUIDELINES:
- Use workplace-appropriate language
- Focus on solutions and next steps
- Remove emotional reactivity while keeping assertiveness
- Frame concerns as business issues, not personal conflicts
- Maintain professional boundaries

Examples:
"This is fucking ridiculous" → "I have serious concerns about this approach"
"John is being an idiot" → "I'd like to discuss some challenges with John's current approach"
"I'm pissed about this deadline" → "I have concerns about this timeline and would like to discuss adjustments"`

	personalGuidelines = `PERSONAL MODE GUIDELINES:
- Keep warmth and emotional connection
- Express feelings clearly without attacking the person
- Focus on relationship needs and boundaries
- Remove harsh language but keep emotional honesty
- Use "I feel" and "I need" language

Examples:
"You never listen to me!" → "I feel unheard when I'm interrupted. I need us to work on this together"
"You're being selfish" → "I'm feeling hurt because I need more consideration in our decisions"
"This is bullshit" → "I'm really frustrated with this situation and need to talk through it"`

	casualGuidelines = `CASUAL MODE GUIDELINES:
- Keep it relaxed and friendly
- Remove harsh edges while maintaining authenticity
- Focus on being constructive rather than critical
- Use casual but respectful language
- Maintain the speaker's personality

Examples:
"That's stupid" → "I see it differently - here's my perspective"
"He's being a jerk" → "He's been pretty difficult to deal with lately"
"I hate this" → "This is really frustrating me"`
)

// Built-in mode names. They double as the legacy enum accepted on
// translation requests and as User.PreferredMode values.
const (
	ModeProfessional = "professional"
	ModePersonal     = "personal"
	ModeCasual       = "casual"
)

var builtinTemplates = map[string]string{
	ModeProfessional: coachPrinciples + "\n\n" + professionalGuidelines,
	ModePersonal:     coachPrinciples + "\n\n" + personalGuidelines,
	ModeCasual:       coachPrinciples + "\n\n" + casualGuidelines,
}

// IsBuiltinMode reports whether name is one of the legacy mode names.
func IsBuiltinMode(name string) bool {
	_, ok := builtinTemplates[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// BuiltinTemplate returns the instruction used for a mode without a custom
// prompt. Unknown names get the personal template.
func BuiltinTemplate(modeName string) string {
	if tmpl, ok := builtinTemplates[strings.ToLower(strings.TrimSpace(modeName))]; ok {
		return tmpl
	}
	return builtinTemplates[ModePersonal]
}

// Compose builds the single instruction string sent to the generator.
// It is pure: the same arguments always yield the same prompt.
func Compose(input, modeName, modeDescription, customInstruction string, styleExamples []string) string {
	instruction := strings.TrimSpace(customInstruction)
	if instruction == "" {
		instruction = BuiltinTemplate(modeName)
	}

	prompt := fmt.Sprintf(`Mode: %s
Description: %s

Instructions: %s

Original message: "%s"

Please transform this message according to the mode description and instructions above.`,
		modeName, modeDescription, instruction, input)

	if len(styleExamples) > 0 {
		examples := styleExamples
		if len(examples) > styleExamplesInPrompt {
			examples = examples[:styleExamplesInPrompt]
		}
		prompt = "User's communication style examples: " + strings.Join(examples, "; ") + "\n\n" +
			prompt + "\n\nAdapt the response to match the user's natural style."
	}
	return prompt
}
