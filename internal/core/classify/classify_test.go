package classify

import "testing"

func TestClassify_FireBeatsLaterCategories(t *testing.T) {
	c := New()
	got := c.Classify("Space heater recall", "units may overheat and catch fire, risk of electrical shock")
	if got.Hazard != HazardFireBurn {
		t.Fatalf("hazard = %q, want fire_burn", got.Hazard)
	}
	if got.Severity != SeverityHigh {
		t.Fatalf("severity = %q, want high", got.Severity)
	}
}

func TestClassify_FatalityOverridesMedium(t *testing.T) {
	c := New()
	// laceration keywords alone map to medium; fatality must force critical
	got := c.Classify("Kitchen mandoline", "blade can cause laceration; one fatality reported")
	if got.Severity != SeverityCritical {
		t.Fatalf("severity = %q, want critical", got.Severity)
	}
	if got.Hazard != HazardLaceration {
		t.Fatalf("hazard = %q, want laceration", got.Hazard)
	}
}

func TestClassify_DeathInTitle(t *testing.T) {
	c := New()
	got := c.Classify("Recall after infant death", "crib mattress gap")
	if got.Severity != SeverityCritical {
		t.Fatalf("severity = %q, want critical", got.Severity)
	}
}

func TestClassify_StemMatching(t *testing.T) {
	c := New()
	got := c.Classify("Toy recall", "small parts pose a choking hazard to children")
	if got.Hazard != HazardChoking {
		t.Fatalf("hazard = %q, want choking", got.Hazard)
	}
	if got.Severity != SeverityHigh {
		t.Fatalf("severity = %q, want high", got.Severity)
	}
}

func TestClassify_ShortStemNeedsExactToken(t *testing.T) {
	c := New()
	// "cut" must not match inside "execute"
	got := c.Classify("Firmware update", "devices execute outdated code")
	if got.Hazard != HazardOther {
		t.Fatalf("hazard = %q, want other", got.Hazard)
	}
	if got.Severity != SeverityLow {
		t.Fatalf("severity = %q, want low", got.Severity)
	}
}

func TestClassify_NothingMatches(t *testing.T) {
	c := New()
	got := c.Classify("Label correction", "incorrect care instructions printed")
	if got.Hazard != HazardOther || got.Severity != SeverityLow {
		t.Fatalf("got %+v, want other/low", got)
	}
}
