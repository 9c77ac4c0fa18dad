package scapeid

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"track":            Track,
		"TRACK":            Track,
		"scape_track":      Track,
		"track_env":        Track,
		"trackgym":         Track,
		"RollerBall":       Track,
		"roller_agent":     Track,
		"race-track":       Track,
		"custom_sim":       "custom-sim",
		"scape_custom_sim": "scape-custom-sim",
		"":                 "",
	}

	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("normalize(%q)=%q want=%q", in, got, want)
		}
	}
}
