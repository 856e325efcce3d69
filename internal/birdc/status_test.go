package birdc

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const statusBird1 = `0001 BIRD 1.3.4 ready.
1000-BIRD 1.3.4
1011-Router ID is 195.69.146.34
 Current server time is 10-01-2012 10:24:37
 Last reboot on 03-01-2012 12:46:40
 Last reconfiguration on 03-01-2012 12:46:40
0013 Daemon is up and running
`

const statusBird2 = `0001 BIRD 2.0.8 ready.
1000-BIRD 2.0.8
1011-Router ID is 10.0.0.1
 Hostname is bird2-router
 Current server time is 2021-05-04 10:24:37.123
 Last reboot on 2021-05-01 12:46:40.456
 Last reconfiguration on 2021-05-02 08:00:00.000
0013 Daemon is up and running
`

func TestDecodeStatus_Bird1(t *testing.T) {
	now := time.Date(2012, 1, 10, 11, 0, 0, 0, time.UTC)
	st, err := DecodeStatus(statusBird1, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Version != "1.3.4" {
		t.Errorf("expected version '1.3.4', got '%s'", st.Version)
	}
	if st.RouterID != "195.69.146.34" {
		t.Errorf("expected router_id '195.69.146.34', got '%s'", st.RouterID)
	}
	if st.Hostname != "" {
		t.Errorf("expected no hostname, got '%s'", st.Hostname)
	}
	want := time.Date(2012, 1, 3, 12, 46, 40, 0, time.UTC)
	if !st.LastReboot.Equal(want) {
		t.Errorf("expected last_reboot %s, got %s", want, st.LastReboot)
	}
	if !st.LastReconfiguration.Equal(want) {
		t.Errorf("expected last_reconfiguration %s, got %s", want, st.LastReconfiguration)
	}
}

func TestDecodeStatus_Bird2WithHostname(t *testing.T) {
	now := time.Date(2021, 5, 4, 11, 0, 0, 0, time.UTC)
	st, err := DecodeStatus(statusBird2, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Version != "2.0.8" {
		t.Errorf("expected version '2.0.8', got '%s'", st.Version)
	}
	if st.Hostname != "bird2-router" {
		t.Errorf("expected hostname 'bird2-router', got '%s'", st.Hostname)
	}
	if want := time.Date(2021, 5, 1, 12, 46, 40, 0, time.UTC); !st.LastReboot.Equal(want) {
		t.Errorf("expected last_reboot %s, got %s", want, st.LastReboot)
	}
	if want := time.Date(2021, 5, 2, 8, 0, 0, 0, time.UTC); !st.LastReconfiguration.Equal(want) {
		t.Errorf("expected last_reconfiguration %s, got %s", want, st.LastReconfiguration)
	}
}

func TestDecodeStatus_Truncated(t *testing.T) {
	cut := strings.Index(statusBird2, " Last reconfiguration")
	_, err := DecodeStatus(statusBird2[:cut], time.Now())
	if err == nil {
		t.Fatal("expected error for truncated reply")
	}
	if !errors.Is(err, ErrStructural) {
		t.Errorf("expected ErrStructural, got %v", err)
	}
}

func TestDecodeStatus_BadRebootTime(t *testing.T) {
	reply := strings.Replace(statusBird1, "03-01-2012 12:46:40", "sometime", 1)
	_, err := DecodeStatus(reply, time.Now())
	if !errors.Is(err, ErrTimestamp) {
		t.Fatalf("expected ErrTimestamp, got %v", err)
	}
}
