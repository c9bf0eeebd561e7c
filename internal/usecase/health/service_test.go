package health

import (
	"context"
	"errors"
	"testing"
)

type fakeCorpus int

func (f fakeCorpus) Count(context.Context) int { return int(f) }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(fakeCorpus(7), fakePinger{}, fakeChecker{})

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("Status = %q, want %q", report.Status, Healthy)
	}
	if report.Documents != 7 {
		t.Errorf("Documents = %d", report.Documents)
	}
	if report.Checks["cache"] != CheckOK || report.Checks["encoder"] != CheckOK {
		t.Errorf("Checks = %v", report.Checks)
	}
}

func TestCheck_DegradedOnComponentFailure(t *testing.T) {
	tests := []struct {
		name    string
		cache   CachePinger
		encoder EncoderChecker
		failed  string
	}{
		{"cache down", fakePinger{err: errors.New("refused")}, fakeChecker{}, "cache"},
		{"encoder down", fakePinger{}, fakeChecker{err: errors.New("401")}, "encoder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(fakeCorpus(0), tt.cache, tt.encoder)

			report := svc.Check(context.Background())
			if report.Status != Degraded {
				t.Errorf("Status = %q, want %q", report.Status, Degraded)
			}
			if report.Checks[tt.failed] != CheckError {
				t.Errorf("Checks[%s] = %q, want %q", tt.failed, report.Checks[tt.failed], CheckError)
			}
		})
	}
}

func TestCheck_NilComponentsSkipped(t *testing.T) {
	svc := New(fakeCorpus(3), nil, nil)

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("Status = %q, absent components must not degrade health", report.Status)
	}
	if len(report.Checks) != 0 {
		t.Errorf("Checks = %v, want none", report.Checks)
	}
	if report.Documents != 3 {
		t.Errorf("Documents = %d", report.Documents)
	}
}

func TestCheck_NilCorpus(t *testing.T) {
	svc := New(nil, nil, nil)

	report := svc.Check(context.Background())
	if report.Documents != 0 {
		t.Errorf("Documents = %d", report.Documents)
	}
}
