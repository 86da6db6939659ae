package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testLocations = map[string]string{
	"1337D": "RIVENDALE DISTRICT (444 hobbit lane)",
	"8675R": "ROHAN COURT (123 Horse Lord Blvd)",
}

// setupCourt pins the clock to 5/1/2018 8:30 UTC and gives ctrack 12345 one active relationship
func setupCourt(t *testing.T) (*testEnv, models.ReportingRelationship) {
	e := newTestEnv(t)
	e.now = time.Date(2018, 5, 1, 8, 30, 0, 0, time.UTC)
	client := e.createClient("Frodo", "Baggins", "+14155551234")
	require.NoError(t, e.db.Model(&client).Update("id_number", "12345").Error)
	rr := e.createRelationship(e.caseworker, client, true)
	return e, rr
}

func courtDate(personID, date, tm string) CourtDate {
	return CourtDate{PersonID: personID, CaseCode: "1337D", LastName: "BAGGINS", Date: date, Time: tm, Room: "1"}
}

func scheduledReminders(t *testing.T, e *testEnv, rrID uint) []models.Message {
	var msgs []models.Message
	require.NoError(t, e.db.Where("reporting_relationship_id = ? AND type = ? AND sent = ?", rrID, models.MessageTypeCourtReminder, false).
		Order("send_at").Find(&msgs).Error)
	return msgs
}

func TestImport_SchedulesReminder(t *testing.T) {
	e, rr := setupCourt(t)

	result, err := e.court.Import(context.Background(), ImportRequest{
		UserID:    e.caseworker.ID,
		FileName:  "court_dates.csv",
		Dates:     []CourtDate{courtDate("12345", "5/8/2018", "8:30")},
		Locations: testLocations,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scheduled)

	msgs := scheduledReminders(t, e, rr.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Reminder: you have court on 5/8/2018 at 8:30am, room 1 at RIVENDALE DISTRICT (444 hobbit lane). Reply to this message if you have questions.", msgs[0].Body)
	assert.True(t, msgs[0].SendAt.Equal(time.Date(2018, 5, 7, 8, 30, 0, 0, time.UTC)))
	require.NotNil(t, msgs[0].CourtDateCSVID)
	assert.Equal(t, result.Batch.ID, *msgs[0].CourtDateCSVID)
	assert.Equal(t, models.MessageKindScheduled, msgs[0].Kind(e.now))

	jobs := e.jobs(models.JobKindDeliverMessage)
	require.Len(t, jobs, 1)

	var client models.Client
	require.NoError(t, e.db.First(&client, rr.ClientID).Error)
	require.NotNil(t, client.NextCourtDateAt)
	assert.True(t, client.NextCourtDateAt.Equal(time.Date(2018, 5, 8, 8, 30, 0, 0, time.UTC)))
}

func TestImport_SkipsPastAndNearDates(t *testing.T) {
	e, rr := setupCourt(t)

	result, err := e.court.Import(context.Background(), ImportRequest{
		FileName: "court_dates.csv",
		Dates: []CourtDate{
			courtDate("12345", "4/30/2018", "9:00"),
			courtDate("12345", "5/1/2018", "9:00"),
			courtDate("12345", "5/8/2018", "8:30"),
			courtDate("", "5/9/2018", "8:30"),
		},
		Locations: testLocations,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scheduled)
	assert.Equal(t, 3, result.Skipped)
	assert.Len(t, scheduledReminders(t, e, rr.ID), 1)
}

func TestImport_InvalidDateAbortsBatch(t *testing.T) {
	e, rr := setupCourt(t)
	ctx := context.Background()

	_, err := e.court.Import(ctx, ImportRequest{
		Dates:     []CourtDate{courtDate("12345", "5/8/2018", "8:30")},
		Locations: testLocations,
	})
	require.NoError(t, err)
	before := scheduledReminders(t, e, rr.ID)
	require.Len(t, before, 1)

	bad := courtDate("12345", "5/42/2018", "8:30")
	bad.Row = 3
	_, err = e.court.Import(ctx, ImportRequest{
		Dates:     []CourtDate{courtDate("12345", "5/9/2018", "8:30"), bad},
		Locations: testLocations,
	})
	var importErr *ImportValidationError
	require.True(t, errors.As(err, &importErr))
	assert.Equal(t, 3, importErr.Row)
	assert.Equal(t, "crt_dt", importErr.Field)

	after := scheduledReminders(t, e, rr.ID)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
}

func TestImport_ReplacesPreviousBatch(t *testing.T) {
	e, rr := setupCourt(t)
	ctx := context.Background()

	first, err := e.court.Import(ctx, ImportRequest{Dates: []CourtDate{courtDate("12345", "5/8/2018", "8:30")}, Locations: testLocations})
	require.NoError(t, err)
	manual := e.addMessage(rr, models.Message{Body: "my own reminder", Read: true, SendAt: e.now.Add(48 * time.Hour)})

	second, err := e.court.Import(ctx, ImportRequest{Dates: []CourtDate{courtDate("12345", "5/10/2018", "8:30")}, Locations: testLocations})
	require.NoError(t, err)
	assert.NotEqual(t, first.Batch.ID, second.Batch.ID)

	msgs := scheduledReminders(t, e, rr.ID)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "5/10/2018")
	assert.Equal(t, "my own reminder", e.reloadMessage(manual.ID).Body)
}

func TestImport_PicksMostRecentlyContacted(t *testing.T) {
	e, rr1 := setupCourt(t)
	ctx := context.Background()

	// rr4 belongs to another department's client record with the same ctrack.
	otherDept := models.Department{Name: "Pretrial", PhoneNumber: "+14155550009"}
	e.mustCreate(&otherDept)
	officer := models.User{Email: "kim@example.org", PasswordHash: "x", FullName: "Kim", DepartmentID: &otherDept.ID, Active: true}
	e.mustCreate(&officer)
	client4 := e.createClient("Frodo", "B", "+14155554444")
	require.NoError(t, e.db.Model(&client4).Update("id_number", "12345").Error)
	rr4 := e.createRelationship(officer, client4, true)
	e.addMessage(rr4, models.Message{Body: "hi", Sent: true, Read: true, SendAt: e.now.Add(-24 * time.Hour)})

	_, err := e.court.Import(ctx, ImportRequest{Dates: []CourtDate{courtDate("12345", "5/8/2018", "8:30")}, Locations: testLocations})
	require.NoError(t, err)
	assert.Empty(t, scheduledReminders(t, e, rr1.ID))
	require.Len(t, scheduledReminders(t, e, rr4.ID), 1)

	// Once both have history, the more recent contact wins.
	e.addMessage(rr1, models.Message{Body: "older", Sent: true, Read: true, SendAt: e.now.Add(-72 * time.Hour)})
	e.addMessage(rr1, models.Message{Body: "unread reply", Inbound: true, Sent: true, SendAt: e.now.Add(-time.Hour)})
	_, err = e.court.Import(ctx, ImportRequest{Dates: []CourtDate{courtDate("12345", "5/8/2018", "8:30")}, Locations: testLocations})
	require.NoError(t, err)
	assert.Empty(t, scheduledReminders(t, e, rr1.ID))
	assert.Len(t, scheduledReminders(t, e, rr4.ID), 1)
}

func TestImport_TieGoesToOldestRelationship(t *testing.T) {
	e, rr1 := setupCourt(t)

	otherDept := models.Department{Name: "Pretrial", PhoneNumber: "+14155550009"}
	e.mustCreate(&otherDept)
	officer := models.User{Email: "kim@example.org", PasswordHash: "x", FullName: "Kim", DepartmentID: &otherDept.ID, Active: true}
	e.mustCreate(&officer)
	client2 := e.createClient("Frodo", "B", "+14155554444")
	require.NoError(t, e.db.Model(&client2).Update("id_number", "12345").Error)
	rr2 := e.createRelationship(officer, client2, true)

	result, err := e.court.Import(context.Background(), ImportRequest{Dates: []CourtDate{courtDate("12345", "5/8/2018", "8:30")}, Locations: testLocations})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scheduled)
	assert.Len(t, scheduledReminders(t, e, rr1.ID), 1)
	assert.Empty(t, scheduledReminders(t, e, rr2.ID))
}

func TestImport_RespectsCaseworkerCourtDate(t *testing.T) {
	e, rr := setupCourt(t)
	manual := time.Date(2018, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, e.clients.SetCourtDate(context.Background(), e.caseworker.ID, rr.ClientID, &manual))

	_, err := e.court.Import(context.Background(), ImportRequest{Dates: []CourtDate{courtDate("12345", "5/8/2018", "8:30")}, Locations: testLocations})
	require.NoError(t, err)

	var client models.Client
	require.NoError(t, e.db.First(&client, rr.ClientID).Error)
	require.NotNil(t, client.NextCourtDateAt)
	assert.True(t, client.NextCourtDateAt.Equal(manual))
	assert.True(t, client.NextCourtDateSetByUser)
	assert.Len(t, scheduledReminders(t, e, rr.ID), 1)
}

func TestReadCourtDates_CSV(t *testing.T) {
	input := "ofndr_num,(expression),lname,crt_dt,crt_tm,crt_rm\n" +
		"12345,1337D,BAGGINS,5/8/2018,8:30,1\n" +
		",8675R,GAMGEE,5/9/2018,9:00,2\n"

	dates, err := ReadCourtDates("dates.csv", strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, CourtDate{Row: 2, PersonID: "12345", CaseCode: "1337D", LastName: "BAGGINS", Date: "5/8/2018", Time: "8:30", Room: "1"}, dates[0])
	assert.Empty(t, dates[1].PersonID)

	_, err = ReadCourtDates("dates.csv", strings.NewReader("ofndr_num,lname\n1,A\n"))
	assert.Error(t, err)
	_, err = ReadCourtDates("dates.pdf", strings.NewReader(input))
	assert.Error(t, err)
}

func TestReadLocations_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"crt_loc_cd", "crt_loc_desc"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"1337D", "RIVENDALE DISTRICT (444 hobbit lane)"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"8675R", "ROHAN COURT (123 Horse Lord Blvd)"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	locations, err := ReadLocations("locations.xlsx", &buf)
	require.NoError(t, err)
	assert.Equal(t, testLocations, locations)
}

func TestImport_SkipsCaseworkerWithoutDepartment(t *testing.T) {
	e, rr := setupCourt(t)

	loner := models.User{Email: "loner@example.org", PasswordHash: "x", FullName: "No Dept", Active: true}
	e.mustCreate(&loner)
	client := e.createClient("Samwise", "Gamgee", "+14155559876")
	require.NoError(t, e.db.Model(&client).Update("id_number", "67890").Error)
	orphan := e.createRelationship(loner, client, true)

	result, err := e.court.Import(context.Background(), ImportRequest{
		FileName: "court_dates.csv",
		Dates: []CourtDate{
			courtDate("12345", "5/8/2018", "8:30"),
			courtDate("67890", "5/9/2018", "9:00"),
		},
		Locations: testLocations,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scheduled)
	assert.Equal(t, 1, result.Skipped)

	assert.Len(t, scheduledReminders(t, e, rr.ID), 1)
	assert.Empty(t, scheduledReminders(t, e, orphan.ID))
}
