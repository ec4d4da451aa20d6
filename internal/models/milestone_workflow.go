package models

// Workflow selects which status graph a milestone follows.
type Workflow string

const (
	WorkflowStandard Workflow = "standard"
	WorkflowApproval Workflow = "approval"
)

// transitions lists the single forward successor of every non-terminal status.
var transitions = map[Workflow]map[MilestoneStatus]MilestoneStatus{
	WorkflowStandard: {
		StatusPending:    StatusInProgress,
		StatusInProgress: StatusCompleted,
		StatusCompleted:  StatusPaid,
	},
	WorkflowApproval: {
		StatusPending:        StatusInProgress,
		StatusInProgress:     StatusSubmitted,
		StatusSubmitted:      StatusClientApproved,
		StatusClientApproved: StatusPaymentPending,
		StatusPaymentPending: StatusPaid,
	},
}

var (
	workRoles = []Role{RoleAdmin, RoleManager, RoleDeveloper}
	paidRoles = []Role{RoleAdmin}
)

// ParseWorkflow defaults an empty value to the standard workflow.
func ParseWorkflow(s string) (Workflow, bool) {
	if s == "" {
		return WorkflowStandard, true
	}
	wf := Workflow(s)
	_, ok := transitions[wf]
	return wf, ok
}

func (w Workflow) Valid() bool {
	_, ok := transitions[w]
	return ok
}

// Next returns the allowed successors of from. Terminal and unknown states have none.
func (w Workflow) Next(from MilestoneStatus) []MilestoneStatus {
	if to, ok := transitions[w][from]; ok {
		return []MilestoneStatus{to}
	}
	return nil
}

func (w Workflow) CanTransition(from, to MilestoneStatus) bool {
	for _, next := range w.Next(from) {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentPredecessor is the only status from which paid is reachable.
func (w Workflow) PaymentPredecessor() MilestoneStatus {
	for from, to := range transitions[w] {
		if to == StatusPaid {
			return from
		}
	}
	return ""
}

// Statuses returns every status of the workflow in graph order.
func (w Workflow) Statuses() []MilestoneStatus {
	out := []MilestoneStatus{StatusPending}
	for cur := StatusPending; ; {
		next, ok := transitions[w][cur]
		if !ok {
			return out
		}
		out = append(out, next)
		cur = next
	}
}

func (w Workflow) HasStatus(s MilestoneStatus) bool {
	for _, st := range w.Statuses() {
		if st == s {
			return true
		}
	}
	return false
}

// TransitionRoles returns the roles allowed to request a move into to through
// a status update. Reaching paid through payment verification is not role-gated.
func TransitionRoles(to MilestoneStatus) []Role {
	if to == StatusPaid {
		return paidRoles
	}
	return workRoles
}

func CanRequestTransition(role Role, to MilestoneStatus) bool {
	for _, r := range TransitionRoles(to) {
		if r == role {
			return true
		}
	}
	return false
}

func (s MilestoneStatus) Terminal() bool {
	return s == StatusPaid
}
