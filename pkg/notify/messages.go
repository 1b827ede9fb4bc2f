package notify

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
)

func ApprovalMessage(r *common.Relationship, approverID int64) string {
	return fmt.Sprintf("The %s %s has been approved by user #%d.", r.Title(), r.Label(), approverID)
}

func FailureMessage(r *common.Relationship, cause error) string {
	return fmt.Sprintf("The %s %s failed during processing. Reason: %s", r.Title(), r.Label(), cause)
}

func RejectionMessage(r *common.Relationship, reason string) string {
	msg := fmt.Sprintf("The %s %s has been rejected.", r.Title(), r.Label())
	if reason = strings.TrimSpace(reason); reason != "" {
		msg += " Reason: " + reason
	}
	return msg
}

func RetirementMessage(r *common.Relationship) string {
	return fmt.Sprintf("The %s %s has been undone.", r.Title(), r.Label())
}

// ActionName is the mod action kind, e.g. "tag_alias_create".
func ActionName(kind common.Kind, verb string) string {
	return fmt.Sprintf("tag_%s_%s", kind, verb)
}

// Describe renders the persisted differences between two versions of a
// relationship, e.g. `changed status from "pending" to "queued"`.
func Describe(before, after *common.Relationship) string {
	changes := make([]string, 0, 5)
	add := func(attr, old, cur string, wasSet bool) {
		if wasSet && old == cur {
			return
		}
		if !wasSet {
			changes = append(changes, fmt.Sprintf("set %s to %q", attr, cur))
			return
		}
		changes = append(changes, fmt.Sprintf("changed %s from %q to %q", attr, old, cur))
	}

	add("antecedent_name", before.Antecedent, after.Antecedent, true)
	add("consequent_name", before.Consequent, after.Consequent, true)
	add("status", before.DisplayStatus(), after.DisplayStatus(), true)
	if after.ApproverID != nil {
		cur := fmt.Sprint(*after.ApproverID)
		if before.ApproverID == nil {
			add("approver_id", "", cur, false)
		} else {
			add("approver_id", fmt.Sprint(*before.ApproverID), cur, true)
		}
	}
	if before.PostCountSnapshot != after.PostCountSnapshot {
		add("post_count", fmt.Sprint(before.PostCountSnapshot), fmt.Sprint(after.PostCountSnapshot), true)
	}
	return strings.Join(changes, ", ")
}

// Details builds the mod action payload for r.
func Details(r *common.Relationship, changeDesc string) map[string]any {
	details := map[string]any{
		"desc":       fmt.Sprintf("%s: %s", r.Title(), r.Label()),
		"antecedent": r.Antecedent,
		"consequent": r.Consequent,
	}
	if changeDesc != "" {
		details["change_desc"] = changeDesc
	}
	return details
}
