package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateClient_Outcomes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	in := CreateClientInput{FirstName: "Dana", LastName: "Client", PhoneNumber: "+14155551234"}

	created, err := e.clients.CreateClient(ctx, e.caseworker.ID, in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, created.Outcome)
	assert.True(t, created.Relationship.Active)

	_, err = e.clients.CreateClient(ctx, e.caseworker.ID, in)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "phone_number", validation.Field)

	// Another caseworker in the department cannot take an active client.
	_, err = e.clients.CreateClient(ctx, e.colleague.ID, in)
	var conflictErr *ConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.True(t, errors.Is(err, models.ErrActiveRelationshipExists))

	_, err = e.relationships.Deactivate(ctx, created.Relationship.ID)
	require.NoError(t, err)

	linked, err := e.clients.CreateClient(ctx, e.colleague.ID, in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLinkedExisting, linked.Outcome)
	assert.Equal(t, created.Relationship.ClientID, linked.Relationship.ClientID)

	_, err = e.relationships.Deactivate(ctx, linked.Relationship.ID)
	require.NoError(t, err)
	reactivated, err := e.clients.CreateClient(ctx, e.caseworker.ID, in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReactivated, reactivated.Outcome)
	assert.Equal(t, created.Relationship.ID, reactivated.Relationship.ID)
}

func TestCreateClient_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.provider.invalid["555"] = true

	_, err := e.clients.CreateClient(ctx, e.caseworker.ID, CreateClientInput{FirstName: "Dana", LastName: "Client", PhoneNumber: "555"})
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "phone_number", validation.Field)
	assert.True(t, errors.Is(err, transport.ErrNumberNotFound))

	_, err = e.clients.CreateClient(ctx, e.caseworker.ID, CreateClientInput{LastName: "Client", PhoneNumber: "+14155551234"})
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "first_name", validation.Field)
}

func TestUpdateDetails(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rr := e.createRelationship(e.caseworker, e.createClient("Dana", "Client", "+14155551234"), true)

	category, notes := "cat_3", "call after 5"
	updated, err := e.clients.UpdateDetails(ctx, e.caseworker.ID, rr.ID, UpdateDetailsInput{Category: &category, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "cat_3", updated.Category)
	assert.Equal(t, "call after 5", e.reloadRelationship(rr.ID).Notes)

	bogus := "cat_99"
	_, err = e.clients.UpdateDetails(ctx, e.caseworker.ID, rr.ID, UpdateDetailsInput{Category: &bogus})
	assert.True(t, errors.Is(err, models.ErrInvalidCategory))

	_, err = e.clients.UpdateDetails(ctx, e.colleague.ID, rr.ID, UpdateDetailsInput{Notes: &notes})
	assert.True(t, errors.Is(err, ErrRelationshipNotFound))
}

func TestMessageService_ScheduleRescheduleDelete(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	client := e.createClient("Dana", "Client", "+14155551234")
	rr := e.createRelationship(e.caseworker, client, true)

	sendAt := e.now.Add(2 * time.Hour)
	msg, err := e.messages.Send(ctx, e.caseworker.ID, rr.ID, SendMessageInput{Body: "appointment tomorrow", SendAt: &sendAt})
	require.NoError(t, err)
	assert.Equal(t, e.dept.PhoneNumber, msg.NumberFrom)
	assert.Equal(t, client.PhoneNumber, msg.NumberTo)
	assert.Equal(t, models.MessageKindScheduled, msg.Kind(e.now))

	scheduled, err := e.messages.ListScheduled(ctx, e.caseworker.ID, rr.ID)
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)
	counts := e.broadcaster.On(ScheduledChannel(e.caseworker.ID, client.ID))
	require.NotEmpty(t, counts)
	assert.EqualValues(t, 1, counts[len(counts)-1].Properties["count"])

	later := e.now.Add(4 * time.Hour)
	rescheduled, err := e.messages.Reschedule(ctx, e.caseworker.ID, msg.ID, "appointment moved", later)
	require.NoError(t, err)
	assert.Equal(t, "appointment moved", rescheduled.Body)
	assert.Len(t, e.jobs(models.JobKindDeliverMessage), 2)

	// Delivery of the stale job is a no-op until the new time.
	outcome, err := e.delivery.Deliver(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	_, err = e.messages.Reschedule(ctx, e.colleague.ID, msg.ID, "hijack", later)
	assert.True(t, errors.Is(err, ErrMessageNotFound))

	require.NoError(t, e.messages.DeleteScheduled(ctx, e.caseworker.ID, msg.ID))
	timeline, err := e.messages.List(ctx, e.caseworker.ID, rr.ID)
	require.NoError(t, err)
	assert.Empty(t, timeline)
}

func TestMessageService_SendNowAndRejectSent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rr := e.createRelationship(e.caseworker, e.createClient("Dana", "Client", "+14155551234"), true)

	msg, err := e.messages.Send(ctx, e.caseworker.ID, rr.ID, SendMessageInput{Body: "hello"})
	require.NoError(t, err)
	outcome, err := e.delivery.Deliver(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	err = e.messages.DeleteScheduled(ctx, e.caseworker.ID, msg.ID)
	assert.True(t, errors.Is(err, ErrNotScheduled))

	_, err = e.messages.Send(ctx, e.caseworker.ID, rr.ID, SendMessageInput{Body: "  "})
	var validation *ValidationError
	assert.True(t, errors.As(err, &validation))
}
