package domain

// ActorType identifies which kind of principal performed an action. Every
// mutation records its actor for the audit timeline.
type ActorType string

const (
	ActorBroker ActorType = "BROKER"
	ActorClient ActorType = "CLIENT"
	ActorAdmin  ActorType = "ADMIN"
	ActorSystem ActorType = "SYSTEM"
)

// ParseActorType validates a wire-format actor type.
func ParseActorType(s string) (ActorType, bool) {
	switch ActorType(s) {
	case ActorBroker, ActorClient, ActorAdmin, ActorSystem:
		return ActorType(s), true
	}
	return "", false
}

// Actor is the authenticated principal attached to a request. IDs are opaque;
// identity resolution happens outside this core.
type Actor struct {
	ID   string
	Type ActorType
	Name string
}

func (a Actor) IsBroker() bool { return a.Type == ActorBroker }
func (a Actor) IsClient() bool { return a.Type == ActorClient }
func (a Actor) IsAdmin() bool  { return a.Type == ActorAdmin }
