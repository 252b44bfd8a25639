package challenge

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		prompt string
		kind   Kind
	}{
		{"Please click each image containing a cat", Grid},
		{"  PLEASE CLICK EACH IMAGE CONTAINING an airplane  ", Grid},
		{"Please click the center of the dog", BoundingBox},
		{"please click the center of the largest circle", BoundingBox},
		{"Select the most accurate description of the image.", MultipleChoice},
		{"Please click on all images that match", Unclassified},
		{"", Unclassified},
		// both phrases present, the later check wins
		{"please click each image containing... please click the center of the bus", BoundingBox},
		{"please click the center of the select the most accurate description of the image", MultipleChoice},
	}

	for _, test := range tests {
		t.Run(test.prompt, func(t *testing.T) {
			if got := Classify(test.prompt); got != test.kind {
				t.Errorf("Classify(%q) = %s; want %s", test.prompt, got, test.kind)
			}
		})
	}
}

func TestWithPromptDoesNotMutate(t *testing.T) {
	s := Session{ID: "a"}
	next := s.WithPrompt("Please click each image containing a bus")

	if s.Kind != Unclassified || s.Target != "" {
		t.Errorf("original session was modified: %+v", s)
	}
	if next.Kind != Grid || next.ID != "a" {
		t.Errorf("unexpected session %+v", next)
	}
}
