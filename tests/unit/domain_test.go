package unit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

func TestForwardableEventsFilter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		event domain.AccessEvent
		want  bool
	}{
		{name: "check-in forwarded", event: attendanceEvent("door-1", "person-1", "2026-08-25T09:00:00+03:00", 1, 1), want: true},
		{name: "check-out forwarded", event: attendanceEvent("door-1", "person-1", "2026-08-25T09:00:00+03:00", 1, 2), want: true},
		{name: "failed auth dropped", event: attendanceEvent("door-1", "person-1", "2026-08-25T09:00:00+03:00", 0, 1), want: false},
		{name: "break-out attendance dropped", event: attendanceEvent("door-1", "person-1", "2026-08-25T09:00:00+03:00", 1, 3), want: false},
		{name: "missing device dropped", event: attendanceEvent("", "person-1", "2026-08-25T09:00:00+03:00", 1, 1), want: false},
		{name: "missing person dropped", event: attendanceEvent("door-1", "", "2026-08-25T09:00:00+03:00", 1, 1), want: false},
		{name: "missing occur time dropped", event: attendanceEvent("door-1", "person-1", "", 1, 1), want: false},
		{name: "no door event dropped", event: domain.AccessEvent{BasicInfo: &domain.EventBasicInfo{Device: &domain.EventDevice{ID: "door-1"}}}, want: false},
		{name: "empty event dropped", event: domain.AccessEvent{}, want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := domain.ForwardableEvents([]domain.AccessEvent{tc.event})
			if tc.want && len(got) != 1 {
				t.Fatalf("expected event to be forwarded, got %v", got)
			}
			if !tc.want && len(got) != 0 {
				t.Fatalf("expected event to be dropped, got %v", got)
			}
		})
	}
}

func TestForwardableEventsFromVendorDocument(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"batchId": "171",
		"remainingNumber": 1,
		"event": [
			{
				"basicInfo": {
					"device": {"id": "b7c3c9bc-door", "name": "Main Entrance"},
					"msgType": 196893,
					"occurTime": "2026-08-25T08:59:12+03:00"
				},
				"data": {
					"openDoorInfo": {
						"event": {
							"basicInfo": {"occurTime": "2026-08-25T08:59:12+03:00"},
							"intelliInfo": {
								"personId": "emp-0042",
								"attendanceStatus": 1,
								"authResult": 1,
								"faceQuality": 98
							}
						}
					}
				}
			},
			{
				"basicInfo": {
					"device": {"id": "b7c3c9bc-door"},
					"msgType": 196893,
					"occurTime": "2026-08-25T09:02:40+03:00"
				},
				"data": {
					"openDoorInfo": {
						"event": {
							"basicInfo": {"occurTime": "2026-08-25T09:02:40+03:00"},
							"intelliInfo": {"personId": "emp-0099", "attendanceStatus": 1, "authResult": 2}
						}
					}
				}
			}
		]
	}`)

	var batch domain.MessageBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		t.Fatalf("decode vendor batch: %v", err)
	}
	if batch.BatchID != "171" || batch.RemainingNumber != 1 || len(batch.Events) != 2 {
		t.Fatalf("unexpected batch shape: %+v", batch)
	}

	got := domain.ForwardableEvents(batch.Events)
	if len(got) != 1 {
		t.Fatalf("expected one forwardable event, got %d", len(got))
	}
	want := domain.ForwardableEvent{
		DeviceID:         "b7c3c9bc-door",
		MsgType:          196893,
		OccurTime:        "2026-08-25T08:59:12+03:00",
		PersonID:         "emp-0042",
		AttendanceStatus: 1,
	}
	if got[0] != want {
		t.Fatalf("got %+v, want %+v", got[0], want)
	}
}

func TestCredentialValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		cred      domain.Credential
		wantError bool
	}{
		{name: "complete", cred: domain.Credential{AccessToken: "at.1", ExpireAt: 1756100000}, wantError: false},
		{name: "missing token", cred: domain.Credential{ExpireAt: 1756100000}, wantError: true},
		{name: "missing expiry", cred: domain.Credential{AccessToken: "at.1"}, wantError: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cred.Validate()
			if tc.wantError && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantError && err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
		})
	}
}

func TestCredentialExpiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_756_000_000, 0)
	cred := domain.Credential{AccessToken: "at.1", ExpireAt: now.Unix() + 600}

	if cred.ExpiredWithin(now, 0) {
		t.Fatal("credential with 10 minutes left must not be expired without margin")
	}
	if !cred.ExpiredWithin(now, 10*time.Minute) {
		t.Fatal("a margin covering the whole remaining lifetime must report expired")
	}
	if got := cred.Remaining(now); got != 10*time.Minute {
		t.Fatalf("remaining = %v, want 10m", got)
	}

	stale := domain.Credential{AccessToken: "at.2", ExpireAt: now.Unix() - 1}
	if !stale.ExpiredWithin(now, 0) {
		t.Fatal("past expiry must report expired")
	}
	if got := stale.Remaining(now); got > 0 {
		t.Fatalf("remaining for an expired credential must not be positive, got %v", got)
	}
}

func TestMessageStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     domain.MessageStatus
		final      bool
		canProcess bool
	}{
		{status: domain.StatusPending, final: false, canProcess: true},
		{status: domain.StatusProcessing, final: false, canProcess: true},
		{status: domain.StatusFailed, final: false, canProcess: true},
		{status: domain.StatusDone, final: true, canProcess: false},
		{status: domain.StatusNotNeeded, final: true, canProcess: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.status), func(t *testing.T) {
			t.Parallel()
			if got := tc.status.Final(); got != tc.final {
				t.Fatalf("Final() = %v, want %v", got, tc.final)
			}
			if got := tc.status.CanProcess(); got != tc.canProcess {
				t.Fatalf("CanProcess() = %v, want %v", got, tc.canProcess)
			}
		})
	}
}

func TestMessageBatchEmpty(t *testing.T) {
	t.Parallel()

	var nilBatch *domain.MessageBatch
	if !nilBatch.Empty() {
		t.Fatal("nil batch must be empty")
	}
	if !(&domain.MessageBatch{}).Empty() {
		t.Fatal("zero batch must be empty")
	}
	if !(&domain.MessageBatch{BatchID: domain.SentinelBatchID}).Empty() {
		t.Fatal("sentinel batch must be empty")
	}
	if (&domain.MessageBatch{BatchID: "9"}).Empty() {
		t.Fatal("real batch must not be empty")
	}
}
