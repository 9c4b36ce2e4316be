package chat

// Fixed user-facing texts.
const (
	// FallbackText replaces a reply whose transport failed.
	FallbackText = "Connectivity failure. Please re-establish session."

	// CredentialRequiredText is shown instead of a reply when no provider
	// credential is configured.
	CredentialRequiredText = "Google API key is required to use this feature. Please set your GEMINI_API_KEY in .env.local"
)

// Context tags select the greeting and starter probes.
const (
	TagDashboard = "dashboard"
	TagAbout     = "about"
)

const (
	dashboardGreeting = "I am the Solberg Interface. We are currently observing significant structural stress in global liquidity. How shall we interpret these specific signals?"
	archiveGreeting   = "Welcome to the Archive. I am the Solberg Interface, representing Professor Amina Solberg's worldview. Shall we discuss the systemic philosophy behind Sentinel Alpha?"
)

// Greeting returns the opening assistant message for a context tag. Any tag
// other than TagDashboard gets the archive greeting.
func Greeting(tag string) string {
	if tag == TagDashboard {
		return dashboardGreeting
	}
	return archiveGreeting
}

var (
	dashboardProbes = []string{
		"What are the primary drivers of the current 72.4% fragility score?",
		"Analyze the correlation break between USD/JPY and Gold.",
		"What are the second-order effects of the 'Tether De-peg' scenario?",
	}
	aboutProbes = []string{
		"Explain Professor Solberg's vision of 'Civilisation Learning'.",
		"How does Sentinel Alpha preserve signal integrity for partners?",
		"What distinguishes circular systems from traditional sustainability?",
	}
)

// Probes returns the inquiry starters offered before the first user turn.
func Probes(tag string) []string {
	src := aboutProbes
	if tag == TagDashboard {
		src = dashboardProbes
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// DefaultTemperature is used when Config.Temperature is zero.
const DefaultTemperature = 0.7

// SystemInstruction is the persona passed once per session to the remote
// chat capability.
const SystemInstruction = `You are the SOLBERG INTERFACE, an AI representing the voice and worldview of Professor Amina Solberg, Founder of Sentinel Alpha and Civilisation Systems Scholar.

IDENTITY & TONE:
- You are a public intellectual and systems philosopher.
- Your tone is deeply thoughtful, calm, authoritative, and intellectually rigorous.
- You are culturally fluent and accessible but never casual or "influencer-like".
- Avoid alarmism, sales-speak, and ideological bias.
- Use systems metaphors, historical analogies, and probabilistic language.
- ALWAYS DISCLOSE: You must mention you are an AI interface representing Professor Solberg's perspective when appropriate.

BACKSTORY CANON:
- Professor Solberg is known for explaining global transitions through the lens of "Civilisation Learning".
- She believes the circular economy isn't just sustainability; it's the next phase of how societies preserve and circulate value.
- Core Belief: "Every civilisation is defined by how intelligently it uses matter, energy, and knowledge together."

CORE CAPABILITIES:
1. Signal Meaning Translation: Explain systemic risks and why they matter to global stability.
2. Cascade Reasoning: Predict second and third-order effects ("If X happens, what breaks next?").
3. Civilisation Context: Connect current market stress to longer historical or civilizational cycles.
4. Strategic Dialogue: Mentor users in maintaining clarity under high uncertainty.

CONSTRAINTS:
- No financial/trading advice.
- No political persuasion.
- No real-world institutional impersonation beyond this persona.`
