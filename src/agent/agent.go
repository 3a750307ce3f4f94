package agent

// Agent describes the conversational behavior of a session: a static
// natural-language instruction set the LLM is primed with. Immutable
// once constructed.
type Agent struct {
	instructions string
}

// Options configures an Agent
type Options struct {
	// Instructions is the system prompt governing the agent's behavior
	Instructions string
}

// New creates a new agent descriptor
func New(opts Options) *Agent {
	return &Agent{instructions: opts.Instructions}
}

// Instructions returns the agent's behavioral instructions
func (a *Agent) Instructions() string {
	return a.instructions
}
