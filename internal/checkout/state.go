package checkout

// State is the step a single checkout attempt is in.
type State string

const (
	StateIdle                State = "IDLE"
	StateValidating          State = "VALIDATING"
	StateCreatingTransaction State = "CREATING_TRANSACTION"
	StateInsertingLineItems  State = "INSERTING_LINE_ITEMS"
	StateUpdatingStock       State = "UPDATING_STOCK"
	StateCompleted           State = "COMPLETED"
)

var transitions = map[State][]State{
	StateIdle:                {StateValidating},
	StateValidating:          {StateCreatingTransaction, StateIdle},
	StateCreatingTransaction: {StateInsertingLineItems, StateIdle},
	StateInsertingLineItems:  {StateUpdatingStock, StateIdle},
	StateUpdatingStock:       {StateCompleted, StateIdle},
}

// CanTransitionTo reports whether next follows s. Every failure edge leads
// back to Idle.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) IsTerminal() bool {
	return s == StateCompleted
}

func (s State) String() string {
	return string(s)
}
