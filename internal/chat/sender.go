package chat

// SenderKind tags who authored a message.
type SenderKind string

const (
	SenderCustomer SenderKind = "customer"
	SenderAgent    SenderKind = "agent"
	SenderSystem   SenderKind = "system"
)

// Audience is one side of a session's read/unread state.
type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceAgent    Audience = "agent"
)

// Sender is a closed variant: a customer, an agent, or the system.
// Construct one with CustomerSender, AgentSender or SystemSender; the system
// variant carries no identity.
type Sender struct {
	kind SenderKind
	id   uint64
}

func CustomerSender(id uint64) Sender { return Sender{kind: SenderCustomer, id: id} }
func AgentSender(id uint64) Sender    { return Sender{kind: SenderAgent, id: id} }
func SystemSender() Sender            { return Sender{kind: SenderSystem} }

// SenderFor maps an audience to the matching sender variant.
func SenderFor(aud Audience, id uint64) Sender {
	if aud == AudienceAgent {
		return AgentSender(id)
	}
	return CustomerSender(id)
}

func (s Sender) Kind() SenderKind { return s.kind }

// UserID returns the identity behind the sender; ok is false for the system.
func (s Sender) UserID() (id uint64, ok bool) {
	if s.kind == SenderSystem {
		return 0, false
	}
	return s.id, true
}
