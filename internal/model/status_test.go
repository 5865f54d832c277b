package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from RunState
		to   RunState
	}{
		{StateIdle, StateEnumerating},
		{StateEnumerating, StateDispatching},
		{StateEnumerating, StateDraining},
		{StateDispatching, StateDraining},
		{StateDraining, StateCompleted},
		{StateDraining, StateCancelled},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from RunState
		to   RunState
	}{
		{StateIdle, StateDispatching},
		{StateDispatching, StateCompleted},
		{StateCompleted, StateEnumerating},
		{StateCancelled, StateDraining},
		{"not_a_state", StateEnumerating},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionRunState_BlocksIllegalTransition(t *testing.T) {
	state := StateIdle
	if err := TransitionRunState(&state, StateDraining); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if state != StateIdle {
		t.Fatalf("state changed on rejected transition: %q", state)
	}
	if err := TransitionRunState(&state, StateEnumerating); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsActive(state) {
		t.Fatalf("expected %q to be active", state)
	}
}

func TestCategoryFromLabel(t *testing.T) {
	cases := []struct {
		label string
		want  Category
		ok    bool
	}{
		{"faved_2024-01-01-10-00-00_", CategoryFaved, true},
		{"liked_", CategoryLiked, true},
		{"shared_2023-05-05_", CategoryShared, true},
		{"other_", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := CategoryFromLabel(tc.label)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("CategoryFromLabel(%q) = %q,%v want %q,%v", tc.label, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRunResultAccounted(t *testing.T) {
	r := RunResult{
		TotalCandidates: 10,
		Downloaded:      2,
		AlreadyPresent:  1,
		Failed:          2,
		Blocked:         1,
		SkippedBlocked:  1,
		SkippedFailed:   1,
		Cancelled:       1,
		NotAttempted:    2,
	}
	if got := r.Accounted(); got != r.TotalCandidates {
		t.Fatalf("accounted=%d want %d", got, r.TotalCandidates)
	}
}

func TestMediaID(t *testing.T) {
	cases := map[string]string{
		"https://www.tiktokv.com/share/video/7234/":  "7234",
		"https://www.tiktokv.com/share/video/7234//": "7234",
		"https://www.tiktok.com/@u/video/99?lang=en": "99",
		"https://cdn.example.com/media/abc.MP4":      "abc",
		"plain":                                      "plain",
		"":                                           "",
	}
	for in, want := range cases {
		if got := MediaID(in); got != want {
			t.Fatalf("MediaID(%q) = %q want %q", in, got, want)
		}
	}
}
