package browser

import "testing"

func TestSplitFlag(t *testing.T) {
	tests := []struct {
		in        string
		wantName  string
		wantValue string
	}{
		{"start-maximized", "start-maximized", ""},
		{"--disable-dev-shm-usage", "disable-dev-shm-usage", ""},
		{"window-size=1280,800", "window-size", "1280,800"},
		{" --lang=he ", "lang", "he"},
		{"", "", ""},
	}

	for _, tt := range tests {
		name, value := splitFlag(tt.in)
		if name != tt.wantName || value != tt.wantValue {
			t.Errorf("splitFlag(%q) = (%q, %q), want (%q, %q)", tt.in, name, value, tt.wantName, tt.wantValue)
		}
	}
}

func TestDefaultFlags(t *testing.T) {
	want := map[string]bool{
		"start-maximized":           true,
		"ignore-certificate-errors": true,
		"ignore-ssl-errors":         true,
		"disable-web-security":      true,
		"disable-dev-shm-usage":     true,
	}

	got := DefaultFlags()
	if len(got) != len(want) {
		t.Fatalf("DefaultFlags() = %v", got)
	}
	for _, f := range got {
		if !want[f] {
			t.Errorf("unexpected default flag %q", f)
		}
	}
}

func TestRodSessionSatisfiesSession(t *testing.T) {
	var _ Session = (*RodSession)(nil)
	var _ Element = (*rodElement)(nil)
}

type fakeProcess struct {
	kills    int
	cleanups int
}

func (p *fakeProcess) Kill()    { p.kills++ }
func (p *fakeProcess) Cleanup() { p.cleanups++ }

func TestStopProcess(t *testing.T) {
	temp := &fakeProcess{}
	stopProcess(temp, true)
	if temp.kills != 1 || temp.cleanups != 1 {
		t.Errorf("generated profile: kills=%d cleanups=%d, want 1 and 1", temp.kills, temp.cleanups)
	}

	persistent := &fakeProcess{}
	stopProcess(persistent, false)
	if persistent.kills != 1 || persistent.cleanups != 0 {
		t.Errorf("configured profile: kills=%d cleanups=%d, want 1 and 0", persistent.kills, persistent.cleanups)
	}
}

func TestRodSessionCloseReleasesProcessOnce(t *testing.T) {
	proc := &fakeProcess{}
	s := &RodSession{proc: proc, removeProfile: true}

	for i := 0; i < 3; i++ {
		if err := s.Close(); err != nil {
			t.Fatalf("Close() = %v", err)
		}
	}
	if proc.cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", proc.cleanups)
	}
	if proc.kills != 0 {
		t.Errorf("kills = %d, want 0 after a clean close", proc.kills)
	}

	keep := &fakeProcess{}
	s = &RodSession{proc: keep}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if keep.cleanups != 0 {
		t.Errorf("configured profile was removed")
	}
}
