package domain

import "testing"

func TestRecordID_StableAcrossRootsAndSeparators(t *testing.T) {
	a := RecordID("data/cat.jpg")
	b := RecordID(`C:\srv\data\cat.jpg`)
	c := RecordID("/var/lib/imagedex/cat.jpg")
	if a != b || b != c {
		t.Errorf("ids differ: %s %s %s", a, b, c)
	}
	if a == RecordID("data/dog.jpg") {
		t.Error("different files must not share an id")
	}
}

func TestNewImageRecord(t *testing.T) {
	r := NewImageRecord("data/cat.jpg", []float32{1, 2})
	if r.ID != RecordID("data/cat.jpg") {
		t.Errorf("ID = %s", r.ID)
	}
	if r.Metadata[MetadataImagePath] != "data/cat.jpg" {
		t.Errorf("metadata = %v", r.Metadata)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{`C:\data\foo.jpg`, "foo.jpg"},
		{"data/foo.jpg", "foo.jpg"},
		{"foo.jpg", "foo.jpg"},
		{"/data/sub/bar.png", "bar.png"},
	}
	for _, tc := range tests {
		if got := FileName(tc.in); got != tc.want {
			t.Errorf("FileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIndexSpec_Validate(t *testing.T) {
	ok := IndexSpec{Name: "images", Dimension: 512, Metric: MetricCosine}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []IndexSpec{
		{Dimension: 512, Metric: MetricCosine},
		{Name: "images", Metric: MetricCosine},
		{Name: "images", Dimension: 512, Metric: "hamming"},
	}
	for _, s := range bad {
		if err := s.Validate(); err == nil {
			t.Errorf("expected error for %+v", s)
		}
	}
}

func TestDimensionMismatchError(t *testing.T) {
	err := NewDimensionMismatch(512, 3)
	if err.Error() != "vector dimension mismatch: index expects 512, got 3" {
		t.Errorf("Error() = %q", err.Error())
	}
}
