package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Feature: clientcomm, Property 1: merge keeps the latest contact and existing details
// For any pair of conversations, after a merge the surviving conversation's
// last contact is the later of the two, and category, notes and status it
// already had are never overwritten.

func TestProperty_MergePreservesDestination(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// Offsets in hours before now; 0 means never contacted.
	offsetGen := gen.IntRange(0, 500)
	categoryGen := gen.OneConstOf(models.CategoryNone, "cat_1", "cat_4")
	notesGen := gen.OneConstOf("", "needs bus pass", "works nights")

	properties.Property("merge_last_contacted_is_max_and_details_kept", prop.ForAll(
		func(fromOffset, toOffset int, fromCategory, toCategory, fromNotes, toNotes string) bool {
			e := newTestEnv(t)
			from := e.createRelationship(e.caseworker, e.createClient("A", "From", "+14155550001"), true)
			to := e.createRelationship(e.caseworker, e.createClient("B", "To", "+14155550002"), true)

			contacted := func(offset int) interface{} {
				if offset == 0 {
					return nil
				}
				return e.now.Add(-time.Duration(offset) * time.Hour)
			}
			e.db.Model(&from).Updates(map[string]interface{}{"category": fromCategory, "notes": fromNotes, "last_contacted_at": contacted(fromOffset)})
			e.db.Model(&to).Updates(map[string]interface{}{"category": toCategory, "notes": toNotes, "last_contacted_at": contacted(toOffset)})

			if _, err := e.relationships.Merge(context.Background(), MergeRequest{FromID: from.ID, ToID: to.ID}); err != nil {
				return false
			}
			merged := e.reloadRelationship(to.ID)

			wantOffset := fromOffset
			if toOffset != 0 && (fromOffset == 0 || toOffset < fromOffset) {
				wantOffset = toOffset
			}
			if wantOffset == 0 {
				if merged.LastContactedAt != nil {
					return false
				}
			} else if merged.LastContactedAt == nil || !merged.LastContactedAt.Equal(e.now.Add(-time.Duration(wantOffset)*time.Hour)) {
				return false
			}

			wantCategory := toCategory
			if toCategory == models.CategoryNone {
				wantCategory = fromCategory
			}
			wantNotes := toNotes
			if toNotes == "" {
				wantNotes = fromNotes
			}
			return merged.Category == wantCategory && merged.Notes == wantNotes
		},
		offsetGen, offsetGen, categoryGen, categoryGen, notesGen, notesGen,
	))

	properties.TestingRun(t)
}

// Feature: clientcomm, Property 2: transfer conserves messages
// For any mix of sent and scheduled messages, the number of messages across
// the source and destination conversations is the same before and after a transfer.

func TestProperty_TransferConservesMessages(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("transfer_message_count_invariant", prop.ForAll(
		func(sent, scheduled, existing int) bool {
			e := newTestEnv(t)
			client := e.createClient("Dana", "Client", "+14155551234")
			from := e.createRelationship(e.caseworker, client, true)
			var dest models.ReportingRelationship
			if existing > 0 {
				dest = e.createRelationship(e.colleague, client, false)
				for i := 0; i < existing; i++ {
					e.addMessage(dest, models.Message{Body: fmt.Sprintf("old %d", i), Sent: true, Read: true})
				}
			}
			for i := 0; i < sent; i++ {
				e.addMessage(from, models.Message{Body: fmt.Sprintf("sent %d", i), Sent: true, Read: true})
			}
			for i := 0; i < scheduled; i++ {
				e.addMessage(from, models.Message{Body: fmt.Sprintf("later %d", i), SendAt: e.now.Add(time.Duration(i+1) * time.Hour)})
			}
			before := e.countMessages(from.ID)
			if existing > 0 {
				before += e.countMessages(dest.ID)
			}

			result, err := e.relationships.Transfer(context.Background(), TransferRequest{RelationshipID: from.ID, ToUserID: e.colleague.ID})
			if err != nil {
				return false
			}
			if existing > 0 && result.To.ID != dest.ID {
				return false
			}
			after := e.countMessages(from.ID) + e.countMessages(result.To.ID)
			return before == after && result.MovedMessages == int64(scheduled)
		},
		gen.IntRange(0, 4), gen.IntRange(0, 4), gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}
