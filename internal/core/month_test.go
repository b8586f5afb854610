package core

import (
	"testing"
	"time"
)

func TestCurrentMonthKey(t *testing.T) {
	now := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	if got := CurrentMonthKey(now); got != "2024-03" {
		t.Fatalf("expected 2024-03, got %s", got)
	}
}

func TestPreviousMonthKey(t *testing.T) {
	cases := []struct {
		in  MonthKey
		out MonthKey
		ok  bool
	}{
		{"2024-04", "2024-03", true},
		{"2024-01", "2023-12", true}, // year rollover
		{"2024-12", "2024-11", true},
		{"2024-13", "", false},
		{"2024-00", "", false},
		{"202403", "", false},
		{"garbage", "", false},
	}
	for _, tc := range cases {
		got, err := PreviousMonthKey(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%s expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err != ErrInvalidMonthKey {
			t.Fatalf("%s expected ErrInvalidMonthKey, got %v", tc.in, err)
		}
	}
}

func TestMonthOfDate(t *testing.T) {
	got, err := MonthOfDate("2024-03-05")
	if err != nil || got != "2024-03" {
		t.Fatalf("expected 2024-03, got %s (err=%v)", got, err)
	}
	if _, err := MonthOfDate("05/03/2024"); err == nil {
		t.Fatal("expected error for malformed date")
	}
	if _, err := MonthOfDate(""); err == nil {
		t.Fatal("expected error for empty date")
	}
}
