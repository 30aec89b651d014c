package scheduler

import "testing"

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("export", "*/5 * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("broken", "every five minutes", func() {}); err == nil {
		t.Error("Expected an error for an invalid expression")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 3 * * 1", false},
		{"* * * * * *", true},
		{"", true},
	}
	for _, tt := range tests {
		if err := ValidateCron(tt.expr); (err != nil) != tt.wantErr {
			t.Errorf("ValidateCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}
