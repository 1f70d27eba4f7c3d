package philosopher

// Observer receives custody and state notifications from an Agent. Calls
// happen synchronously inside Handle.
type Observer interface {
	StateChanged(agent int, from, to State)
	ForkAcquired(agent, forkID int)
	// ForkReleased is called before the fork message leaves the agent.
	ForkReleased(agent, forkID int, dirty bool)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) StateChanged(int, State, State) {}
func (NopObserver) ForkAcquired(int, int)          {}
func (NopObserver) ForkReleased(int, int, bool)    {}
