package attendance

import (
	"context"
	"strings"
	"testing"
	"time"

	"qrattend/internal/apperr"
	"qrattend/internal/session"
)

type fakeStore struct {
	sessions map[string]*session.Session
	enrolled map[string]bool
	records  map[string]*Record

	// raceRecord simulates a concurrent scan: Insert fails with
	// ErrDuplicate and this record becomes visible afterwards.
	raceRecord *Record
	inserts    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[string]*session.Session{},
		enrolled: map[string]bool{},
		records:  map[string]*Record{},
	}
}

func key(sessionID, studentID string) string { return sessionID + "|" + studentID }

func (f *fakeStore) GetSession(_ context.Context, id string) (*session.Session, error) {
	return f.sessions[id], nil
}

func (f *fakeStore) IsEnrolled(_ context.Context, studentID, classID string) (bool, error) {
	return f.enrolled[key(classID, studentID)], nil
}

func (f *fakeStore) GetRecord(_ context.Context, sessionID, studentID string) (*Record, error) {
	return f.records[key(sessionID, studentID)], nil
}

func (f *fakeStore) Insert(_ context.Context, rec *Record) error {
	k := key(rec.SessionID, rec.StudentID)
	if f.raceRecord != nil {
		f.records[k] = f.raceRecord
		return ErrDuplicate
	}
	if _, ok := f.records[k]; ok {
		return ErrDuplicate
	}
	rec.ID = "rec-1"
	f.records[k] = rec
	f.inserts++
	return nil
}

type fakeNotifier struct {
	calls int
}

func (f *fakeNotifier) AttendanceConfirmed(_ context.Context, _, _, _ string) { f.calls++ }

const testToken = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

func seedSession(store *fakeStore, created time.Time, mutate func(*session.Session)) *session.Session {
	s := &session.Session{
		ID:        "s1",
		ClassID:   "c1",
		IssuerID:  "fac1",
		Token:     testToken,
		CreatedAt: created,
		ExpiresAt: created.Add(5 * time.Minute),
	}
	if mutate != nil {
		mutate(s)
	}
	store.sessions[s.ID] = s
	return s
}

func newTestService(store *fakeStore, notify Notifier, at time.Time) *Service {
	svc := NewService(store, notify, nil)
	svc.now = func() time.Time { return at }
	return svc
}

func TestMarkSuccess(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedSession(store, created, nil)
	store.enrolled[key("c1", "stu1")] = true
	notify := &fakeNotifier{}

	svc := newTestService(store, notify, created.Add(time.Minute))
	rec, err := svc.Mark(context.Background(), "stu1", MarkInput{SID: "s1", Token: testToken})
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if rec.Status != StatusPresent {
		t.Errorf("Status = %q, want present", rec.Status)
	}
	if !rec.LocationVerified {
		t.Error("LocationVerified should be true when the check is not required")
	}
	if rec.CheckInTime != created.Add(time.Minute) {
		t.Errorf("CheckInTime = %v, want server-assigned now", rec.CheckInTime)
	}
	if notify.calls != 1 {
		t.Errorf("confirmation calls = %d, want 1", notify.calls)
	}
}

func TestMarkDuplicateScan(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedSession(store, created, nil)
	store.enrolled[key("c1", "stu1")] = true

	svc := newTestService(store, nil, created.Add(time.Minute))
	if _, err := svc.Mark(context.Background(), "stu1", MarkInput{SID: "s1", Token: testToken}); err != nil {
		t.Fatalf("first Mark() error = %v", err)
	}

	_, err := svc.Mark(context.Background(), "stu1", MarkInput{SID: "s1", Token: testToken})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("second scan: kind = %v, want Conflict", apperr.KindOf(err))
	}
	if !strings.Contains(apperr.MessageOf(err), "present") {
		t.Errorf("Conflict must report the existing status, got %q", apperr.MessageOf(err))
	}
	if store.inserts != 1 {
		t.Errorf("inserts = %d, want exactly 1", store.inserts)
	}
}

func TestMarkDuplicateRace(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedSession(store, created, nil)
	store.enrolled[key("c1", "stu1")] = true
	store.raceRecord = &Record{SessionID: "s1", StudentID: "stu1", Status: StatusLate}

	svc := newTestService(store, nil, created.Add(time.Minute))
	_, err := svc.Mark(context.Background(), "stu1", MarkInput{SID: "s1", Token: testToken})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("race: kind = %v, want Conflict (err: %v)", apperr.KindOf(err), err)
	}
	if !strings.Contains(apperr.MessageOf(err), "late") {
		t.Errorf("race Conflict must report the winning record's status, got %q", apperr.MessageOf(err))
	}
}

func TestMarkExpiry(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	expiry := created.Add(5 * time.Minute)

	tests := []struct {
		name string
		at   time.Time
		want apperr.Kind
	}{
		{"just before expiry", expiry.Add(-time.Millisecond), 0},
		{"exactly at expiry", expiry, apperr.Gone},
		{"just after expiry", expiry.Add(time.Millisecond), apperr.Gone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			seedSession(store, created, nil)
			store.enrolled[key("c1", "stu1")] = true
			svc := newTestService(store, nil, tt.at)

			_, err := svc.Mark(context.Background(), "stu1", MarkInput{SID: "s1", Token: testToken})
			if tt.want == 0 {
				if err != nil {
					t.Fatalf("Mark() error = %v, want success", err)
				}
				return
			}
			if apperr.KindOf(err) != tt.want {
				t.Errorf("kind = %v, want %v", apperr.KindOf(err), tt.want)
			}
		})
	}
}

func TestMarkExpiredEvenWithCorrectToken(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedSession(store, created, nil)
	store.enrolled[key("c1", "stu1")] = true

	svc := newTestService(store, nil, created.Add(time.Hour))
	_, err := svc.Mark(context.Background(), "stu1", MarkInput{SID: "s1", Token: testToken})
	if apperr.KindOf(err) != apperr.Gone {
		t.Errorf("kind = %v, want Gone regardless of token correctness", apperr.KindOf(err))
	}
}

func TestMarkGateRejections(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		studentID string
		input     MarkInput
		enrolled  bool
		want      apperr.Kind
	}{
		{"unauthenticated", "", MarkInput{SID: "s1", Token: testToken}, true, apperr.Unauthorized},
		{"missing sid", "stu1", MarkInput{Token: testToken}, true, apperr.BadRequest},
		{"missing token", "stu1", MarkInput{SID: "s1"}, true, apperr.BadRequest},
		{"unknown session", "stu1", MarkInput{SID: "nope", Token: testToken}, true, apperr.NotFound},
		{"wrong token", "stu1", MarkInput{SID: "s1", Token: "deadbeef"}, true, apperr.Unauthorized},
		{"not enrolled", "stu1", MarkInput{SID: "s1", Token: testToken}, false, apperr.Forbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			seedSession(store, created, nil)
			if tt.enrolled {
				store.enrolled[key("c1", "stu1")] = true
			}
			svc := newTestService(store, nil, created.Add(time.Minute))

			_, err := svc.Mark(context.Background(), tt.studentID, tt.input)
			if apperr.KindOf(err) != tt.want {
				t.Errorf("kind = %v, want %v (err: %v)", apperr.KindOf(err), tt.want, err)
			}
			if store.inserts != 0 {
				t.Errorf("gate failure must not insert, inserts = %d", store.inserts)
			}
		})
	}
}

func TestMarkGeofence(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	zero := 0.0
	seed := func(store *fakeStore) {
		seedSession(store, created, func(s *session.Session) {
			s.LocationRequired = true
			s.RequiredLatitude = &zero
			s.RequiredLongitude = &zero
			s.RadiusMeters = 50
		})
		store.enrolled[key("c1", "stu1")] = true
	}
	ptr := func(v float64) *float64 { return &v }

	t.Run("missing coordinates", func(t *testing.T) {
		store := newFakeStore()
		seed(store)
		svc := newTestService(store, nil, created.Add(time.Minute))
		_, err := svc.Mark(context.Background(), "stu1", MarkInput{SID: "s1", Token: testToken})
		if apperr.KindOf(err) != apperr.BadRequest {
			t.Errorf("kind = %v, want BadRequest", apperr.KindOf(err))
		}
	})

	t.Run("out of range ~111m", func(t *testing.T) {
		store := newFakeStore()
		seed(store)
		svc := newTestService(store, nil, created.Add(time.Minute))
		_, err := svc.Mark(context.Background(), "stu1", MarkInput{
			SID: "s1", Token: testToken, Latitude: ptr(0.001), Longitude: ptr(0),
		})
		if apperr.KindOf(err) != apperr.Forbidden {
			t.Fatalf("kind = %v, want Forbidden", apperr.KindOf(err))
		}
		if !strings.Contains(apperr.MessageOf(err), "50") {
			t.Errorf("rejection must name the configured radius, got %q", apperr.MessageOf(err))
		}
	})

	t.Run("in range ~11m", func(t *testing.T) {
		store := newFakeStore()
		seed(store)
		svc := newTestService(store, nil, created.Add(time.Minute))
		rec, err := svc.Mark(context.Background(), "stu1", MarkInput{
			SID: "s1", Token: testToken, Latitude: ptr(0.0001), Longitude: ptr(0),
		})
		if err != nil {
			t.Fatalf("Mark() error = %v", err)
		}
		if !rec.LocationVerified {
			t.Error("LocationVerified should be true after a passing geofence check")
		}
	})
}

func TestMarkStatusDerivation(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"14m59s after start", created.Add(14*time.Minute + 59*time.Second), StatusPresent},
		{"exactly 15m after start", created.Add(15 * time.Minute), StatusPresent},
		{"15m01s after start", created.Add(15*time.Minute + time.Second), StatusLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			seedSession(store, created, func(s *session.Session) {
				s.ExpiresAt = created.Add(30 * time.Minute)
			})
			store.enrolled[key("c1", "stu1")] = true
			svc := newTestService(store, nil, tt.at)

			rec, err := svc.Mark(context.Background(), "stu1", MarkInput{SID: "s1", Token: testToken})
			if err != nil {
				t.Fatalf("Mark() error = %v", err)
			}
			if rec.Status != tt.want {
				t.Errorf("Status = %q, want %q", rec.Status, tt.want)
			}
		})
	}
}
