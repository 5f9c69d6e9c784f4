package gateway

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/smileagent/autoreply-engine/internal/errors"
	"google.golang.org/api/calendar/v3"
)

const defaultAppointmentHour = 10

var (
	numericDatePattern = regexp.MustCompile(`(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})`)
	clockTimePattern   = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
)

// GoogleCalendar implements Calendar against the Google Calendar API.
type GoogleCalendar struct {
	svc         *calendar.Service
	timezone    string
	tenantEmail string
	tenantName  string
}

// CreateAppointment parses the raw matched date/time substrings into an
// absolute instant and creates a primary-calendar event with reminders
// and a conference link. Returns ErrParseFailure when the date token is
// absent or unusable; guessing is worse than skipping the event.
func (g *GoogleCalendar) CreateAppointment(ctx context.Context, req AppointmentRequest) (*Event, error) {
	start, err := parseStartTime(req.RawDate, req.RawTime, g.timezone)
	if err != nil {
		return nil, err
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = 60
	}
	end := start.Add(time.Duration(duration) * time.Minute)

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Appuntamento con %s\n\nCreato automaticamente dall'assistente di %s",
			req.AttendeeName, g.tenantName)
	}

	event := &calendar.Event{
		Summary:     "Appuntamento - " + req.AttendeeName,
		Description: description,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		Attendees: []*calendar.EventAttendee{
			{Email: req.AttendeeEmail, DisplayName: req.AttendeeName},
			{Email: g.tenantEmail},
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 60},
				{Method: "popup", Minutes: 30},
			},
			ForceSendFields: []string{"UseDefault"},
		},
		ColorId: "10",
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: uuid.NewString(),
			},
		},
	}

	created, err := g.svc.Events.Insert("primary", event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyProviderError(err, "insert event")
	}

	return &Event{
		ID:    created.Id,
		Link:  created.HtmlLink,
		Start: start,
		End:   end,
	}, nil
}

// parseStartTime resolves a numeric D/M/Y token plus an optional HH:MM
// token into an instant in the tenant's timezone. Without a time token
// the appointment defaults to 10:00.
func parseStartTime(rawDate, rawTime, timezone string) (time.Time, error) {
	if rawDate == "" {
		return time.Time{}, fmt.Errorf("%w: no date token", apperrors.ErrParseFailure)
	}

	m := numericDatePattern.FindStringSubmatch(rawDate)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: unsupported date token %q", apperrors.ErrParseFailure, rawDate)
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: implausible date %q", apperrors.ErrParseFailure, rawDate)
	}

	hour := defaultAppointmentHour
	minute := 0
	if rawTime != "" {
		if tm := clockTimePattern.FindStringSubmatch(rawTime); tm != nil {
			hour, _ = strconv.Atoi(tm[1])
			minute, _ = strconv.Atoi(tm[2])
		}
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: implausible time %q", apperrors.ErrParseFailure, rawTime)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc), nil
}

var _ Calendar = (*GoogleCalendar)(nil)
