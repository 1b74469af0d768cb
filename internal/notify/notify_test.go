package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/knightshock/internal/sweep"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "h2 sweep finished",
		Attachments: []SlackAttachment{
			{
				Color: "good",
				Title: "sweep 1234",
				Text:  "12/12 cases",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if len(payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	var got SlackMessage
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Test",
		Message: "Test message",
		Type:    NotifyInfo,
		SweepID: "abc",
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
	if got.Text != "Test" || len(got.Attachments) != 1 || got.Attachments[0].Title != "sweep abc" {
		t.Errorf("payload = %+v", got)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Send(Notification{Title: "x"}); err == nil {
		t.Error("expected an error for a 403 response")
	}
	if err := NewSlackNotifier("").Send(Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestSweepFinished(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := sweep.Summary{
		Info:     sweep.Info{ID: "s1", Name: "h2", Started: start, Total: 1500},
		Finished: start.Add(90 * time.Second),
	}

	tests := []struct {
		name      string
		ok, undef int
		failed    int
		cancelled bool
		wantType  NotificationType
		wantTitle string
	}{
		{"all ok", 1500, 0, 0, false, NotifySuccess, "h2 finished"},
		{"some failed", 1400, 50, 50, false, NotifyWarning, "h2 finished"},
		{"all failed", 0, 0, 1500, false, NotifyError, "h2 finished"},
		{"cancelled", 10, 0, 0, true, NotifyWarning, "h2 cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			s.OK, s.Undefined, s.Failed, s.Cancelled = tt.ok, tt.undef, tt.failed, tt.cancelled
			n := SweepFinished(s)
			if n.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", n.Type, tt.wantType)
			}
			if n.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", n.Title, tt.wantTitle)
			}
			if n.SweepID != "s1" {
				t.Errorf("SweepID = %q", n.SweepID)
			}
		})
	}

	s := base
	s.OK = 1500
	n := SweepFinished(s)
	if !strings.Contains(n.Message, "1,500/1,500 cases") || !strings.Contains(n.Message, "1m30s") {
		t.Errorf("Message = %q", n.Message)
	}
	if len(n.Facts) != 4 || n.Facts[0] != (Fact{"ok", "1,500"}) || n.Facts[3] != (Fact{"elapsed", "1m30s"}) {
		t.Errorf("Facts = %+v", n.Facts)
	}
	if !n.At.Equal(s.Finished) {
		t.Errorf("At = %v, want %v", n.At, s.Finished)
	}

	s.OK, s.Cancelled = 900, true
	n = SweepFinished(s)
	if last := n.Facts[len(n.Facts)-1]; last != (Fact{"not run", "600"}) {
		t.Errorf("cancelled sweep facts = %+v", n.Facts)
	}
}

func TestSlackMessage_SweepFields(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	n := SweepFinished(sweep.Summary{
		Info:      sweep.Info{ID: "s9", Name: "ch4", Started: start, Total: 40},
		Finished:  start.Add(2 * time.Minute),
		OK:        30,
		Undefined: 6,
		Failed:    4,
	})

	msg := slackMessage(n)
	if msg.Text != "ch4 finished" || len(msg.Attachments) != 1 {
		t.Fatalf("message = %+v", msg)
	}
	att := msg.Attachments[0]
	if att.Color != "warning" || att.Title != "sweep s9" {
		t.Errorf("attachment = %+v", att)
	}
	if att.Ts != start.Add(2*time.Minute).Unix() {
		t.Errorf("Ts = %d", att.Ts)
	}

	want := []SlackField{
		{Title: "ok", Value: "30", Short: true},
		{Title: "undefined", Value: "6", Short: true},
		{Title: "failed", Value: "4", Short: true},
		{Title: "elapsed", Value: "2m0s", Short: true},
	}
	if len(att.Fields) != len(want) {
		t.Fatalf("Fields = %+v", att.Fields)
	}
	for i := range want {
		if att.Fields[i] != want[i] {
			t.Errorf("Fields[%d] = %+v, want %+v", i, att.Fields[i], want[i])
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2, NoopNotifier{})
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}

func TestAppleScript_Escapes(t *testing.T) {
	got := appleScript(Notification{Title: `plan "a"`, Message: `C:\runs`})
	want := `display notification "C:\\runs" with title "plan \"a\""`
	if got != want {
		t.Errorf("appleScript() = %q, want %q", got, want)
	}
}

func TestDesktopNotifier_Disabled(t *testing.T) {
	if err := NewDesktopNotifier(false).Send(Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
	if IconForType(NotifyError) != "dialog-error" {
		t.Errorf("IconForType(NotifyError) = %q", IconForType(NotifyError))
	}
}
