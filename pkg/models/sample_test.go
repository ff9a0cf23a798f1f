package models

import "testing"

func TestValidate(t *testing.T) {
	valid := Sample{DeviceID: "device_a", UserID: "u1", Timestamp: "2025-01-15T10:00:00Z", HeartRate: 72}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid sample rejected: %v", err)
	}

	cases := []struct {
		name string
		mut  func(s *Sample)
	}{
		{"empty device", func(s *Sample) { s.DeviceID = "" }},
		{"empty user", func(s *Sample) { s.UserID = "" }},
		{"heart rate below minimum", func(s *Sample) { s.HeartRate = 29 }},
		{"heart rate above maximum", func(s *Sample) { s.HeartRate = 221 }},
	}
	for _, tc := range cases {
		s := valid
		tc.mut(&s)
		if err := s.Validate(); err == nil {
			t.Fatalf("%s: Validate accepted %+v", tc.name, s)
		}
	}
}

func TestValidateBounds(t *testing.T) {
	for _, hr := range []int64{MinHeartRate, MaxHeartRate} {
		s := Sample{DeviceID: "d", UserID: "u", HeartRate: hr}
		if err := s.Validate(); err != nil {
			t.Fatalf("boundary heart rate %d rejected: %v", hr, err)
		}
	}
}

func TestPriorityFor(t *testing.T) {
	if PriorityFor("device_a") >= PriorityFor("device_b") {
		t.Fatalf("device_a must outrank device_b")
	}
	if got := PriorityFor("device_z"); got != UnknownDevicePriority {
		t.Fatalf("unknown device priority = %d, want %d", got, UnknownDevicePriority)
	}
}
