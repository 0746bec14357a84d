package liveassist

import "fmt"

// systemInstructionTemplate is the fixed behavioral protocol sent with every
// session. Three sections: who the audio belongs to, how the model must
// behave, and the operator-supplied reference knowledge interpolated at the
// end. The "never respond to your own words" rule is the only guard against
// the model's speech being fed back as input; there is no structural filter
// downstream (see DESIGN.md).
const systemInstructionTemplate = `You are a silent real-time advisor listening to a live conversation.
The audio you receive is a mix of two speakers: the "user" (the person running this tool, on the local microphone) and the "participant" (the remote party in a call or shared tab).

Rules:
1. Never speak first and never address the participant. You advise the user only.
2. When the participant asks a question or raises a topic, produce one concise, actionable insight the user can act on immediately.
3. Keep every response short and self-contained. No meta-commentary, no apologies.
4. Your own previous responses may be audible in the mix; never respond to your own words.
5. If nothing useful can be said about the current exchange, stay silent.

Reference knowledge provided by the user (use it when relevant, verbatim quotes allowed):
%s`

// BuildSystemInstruction assembles the session system instruction from the
// fixed behavioral protocol and the free-text knowledge context. The
// knowledge text is substituted verbatim; no validation is performed.
func BuildSystemInstruction(knowledge string) string {
	if knowledge == "" {
		knowledge = "(none provided)"
	}
	return fmt.Sprintf(systemInstructionTemplate, knowledge)
}
