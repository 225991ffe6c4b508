package lifecycle

import (
	"time"

	"cshealth/internal/domain"
	"cshealth/internal/engine"
)

// ApplyUpdate merges partial update into stored lifecycle state.
// Params: current state (zero value for unknown IDs), update, merge time, and note ID generator.
// Returns: merged state, changed field names in fixed order, and created note.
func ApplyUpdate(
	stored domain.StoredUpdate,
	alertID string,
	update domain.AlertUpdate,
	now time.Time,
	newID func() string,
) (domain.StoredUpdate, []string, *domain.AlertNote) {
	next := stored
	next.AlertID = alertID
	next.Notes = append([]domain.AlertNote(nil), stored.Notes...)
	changed := make([]string, 0, 4)

	if update.Status != nil && *update.Status != next.Status {
		next.Status = *update.Status
		changed = append(changed, "status")
		switch next.Status {
		case domain.StatusAcknowledged:
			if update.AcknowledgedAt == nil && next.AcknowledgedAt == nil {
				update.AcknowledgedAt = &now
			}
		case domain.StatusResolved:
			if update.ResolvedAt == nil && next.ResolvedAt == nil {
				update.ResolvedAt = &now
			}
		}
	}
	if setTime(&next.AcknowledgedAt, update.AcknowledgedAt) {
		changed = append(changed, "acknowledgedAt")
	}
	if setString(&next.AcknowledgedBy, update.AcknowledgedBy) {
		changed = append(changed, "acknowledgedBy")
	}
	if setTime(&next.SnoozedUntil, update.SnoozedUntil) {
		changed = append(changed, "snoozedUntil")
	}
	if setString(&next.SnoozeReason, update.SnoozeReason) {
		changed = append(changed, "snoozeReason")
	}
	if setTime(&next.ResolvedAt, update.ResolvedAt) {
		changed = append(changed, "resolvedAt")
	}
	if setString(&next.ResolvedBy, update.ResolvedBy) {
		changed = append(changed, "resolvedBy")
	}
	if setString(&next.Outcome, update.Outcome) {
		changed = append(changed, "outcome")
	}
	if setString(&next.OwnerID, update.AssignedTo) {
		changed = append(changed, "ownerId")
	}
	if setString(&next.OwnerName, update.AssignedToName) {
		changed = append(changed, "ownerName")
	}

	var note *domain.AlertNote
	if update.Note != nil {
		created := domain.AlertNote{
			ID:        newID(),
			AlertID:   alertID,
			Content:   update.Note.Content,
			CreatedBy: update.Note.CreatedBy,
			CreatedAt: now,
		}
		next.Notes = append(next.Notes, created)
		note = &created
		changed = append(changed, "notes")
	}

	if next.FirstSeenAt == nil && update.FirstSeenAt != nil {
		firstSeen := *update.FirstSeenAt
		next.FirstSeenAt = &firstSeen
	}
	if len(changed) > 0 || next.UpdatedAt.IsZero() {
		next.UpdatedAt = now
	}
	return next, changed, note
}

// MergeAlert overlays stored lifecycle fields onto a recomputed alert.
// Params: recomputed alert, stored state (nil when none), and read time.
// Returns: alert with lifecycle fields, first-seen createdAt, and re-based SLA.
func MergeAlert(alert domain.Alert, stored *domain.StoredUpdate, now time.Time) domain.Alert {
	if stored == nil {
		return alert
	}

	if stored.FirstSeenAt != nil {
		alert.CreatedAt = *stored.FirstSeenAt
		if alert.SLAHours > 0 {
			deadline := stored.FirstSeenAt.Add(time.Duration(alert.SLAHours) * time.Hour)
			alert.SLADeadline = &deadline
		}
	}
	alert.SLAStatus = engine.SLAStatusAt(alert.SLADeadline, alert.SLAHours, now)

	alert.Status = domain.StatusOpen
	if stored.Status != "" {
		alert.Status = stored.Status
	}
	if alert.Status == domain.StatusSnoozed && stored.SnoozedUntil != nil && !now.Before(*stored.SnoozedUntil) {
		alert.Status = domain.StatusOpen
	}

	alert.AcknowledgedAt = stored.AcknowledgedAt
	alert.AcknowledgedBy = stored.AcknowledgedBy
	alert.SnoozedUntil = stored.SnoozedUntil
	alert.SnoozeReason = stored.SnoozeReason
	alert.ResolvedAt = stored.ResolvedAt
	alert.ResolvedBy = stored.ResolvedBy
	alert.Outcome = stored.Outcome
	if stored.OwnerID != "" {
		alert.OwnerID = stored.OwnerID
	}
	if stored.OwnerName != "" {
		alert.OwnerName = stored.OwnerName
	}
	alert.Notes = append([]domain.AlertNote(nil), stored.Notes...)
	return alert
}

func setString(dst *string, value *string) bool {
	if value == nil || *dst == *value {
		return false
	}
	*dst = *value
	return true
}

func setTime(dst **time.Time, value *time.Time) bool {
	if value == nil {
		return false
	}
	if *dst != nil && (*dst).Equal(*value) {
		return false
	}
	copied := *value
	*dst = &copied
	return true
}
